package crdt

// GSet is a grow-only set. Elements can only be added; Merge is set
// union.
type GSet[T comparable] struct {
	Elements map[T]struct{} `json:"elements" codec:"elements"`
}

func NewGSet[T comparable]() *GSet[T] {
	return &GSet[T]{
		Elements: make(map[T]struct{}),
	}
}

// Add adds the element to the set.
func (s *GSet[T]) Add(element T) {
	if s.Elements == nil {
		s.Elements = make(map[T]struct{})
	}
	s.Elements[element] = struct{}{}
}

// Contains returns whether the element is in the set.
func (s *GSet[T]) Contains(element T) bool {
	_, ok := s.Elements[element]
	return ok
}

// Len returns the number of elements in the set.
func (s *GSet[T]) Len() int {
	return len(s.Elements)
}

// Elems returns the elements of the set in unspecified order.
func (s *GSet[T]) Elems() []T {
	elems := make([]T, 0, len(s.Elements))
	for element := range s.Elements {
		elems = append(elems, element)
	}
	return elems
}

// Merge merges other into s as a set union.
func (s *GSet[T]) Merge(other *GSet[T]) {
	if s.Elements == nil {
		s.Elements = make(map[T]struct{})
	}
	for element := range other.Elements {
		s.Elements[element] = struct{}{}
	}
}

// Clone returns a deep copy of the set.
func (s *GSet[T]) Clone() *GSet[T] {
	clone := NewGSet[T]()
	for element := range s.Elements {
		clone.Elements[element] = struct{}{}
	}
	return clone
}
