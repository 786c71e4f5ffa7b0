package selection

// Union returns a new selection selecting every chunk selected by a or b.
// Neither input is modified.
func Union(a, b *Selection) *Selection {
	u := a.Clone()
	u.Merge(b)
	return u
}

// Merge makes s select every chunk that s or other selects. other is not
// modified and none of its sets are shared with s.
func (s *Selection) Merge(other *Selection) {
	switch {
	case !s.inverted && !other.inverted:
		s.mergePlain(other)
	case s.inverted && !other.inverted:
		s.mergeIntoInverted(other)
	case !s.inverted:
		s.mergeInverted(other)
	default:
		s.mergeBothInverted(other)
	}
}

// mergePlain ORs the exception sets region by region.
func (s *Selection) mergePlain(other *Selection) {
	for r, theirs := range other.regions {
		mine, ok := s.regions[r]
		if !ok {
			s.regions[r] = cloneValue(theirs)
			continue
		}
		if mine == nil || theirs == nil {
			s.regions[r] = nil
			continue
		}
		mine.Merge(theirs)
		s.normalize(r, mine)
	}
}

// mergeIntoInverted removes from s every exception that other selects.
func (s *Selection) mergeIntoInverted(other *Selection) {
	for r, theirs := range other.regions {
		mine, ok := s.regions[r]
		if !ok {
			continue
		}
		s.normalize(r, subtract(mine, theirs))
	}
}

// mergeInverted turns s into an inverted selection whose exceptions are the
// exceptions of other that s does not select.
func (s *Selection) mergeInverted(other *Selection) {
	for r, theirs := range other.regions {
		mine, ok := s.regions[r]
		if !ok {
			s.regions[r] = cloneValue(theirs)
			continue
		}
		s.normalize(r, subtract(cloneValue(theirs), mine))
	}
	// regions without exceptions in other are fully selected once inverted
	for r := range s.regions {
		if _, ok := other.regions[r]; !ok {
			delete(s.regions, r)
		}
	}
	s.inverted = true
}

// mergeBothInverted keeps only the exceptions common to both selections.
func (s *Selection) mergeBothInverted(other *Selection) {
	for r, mine := range s.regions {
		theirs, ok := other.regions[r]
		if !ok {
			delete(s.regions, r)
			continue
		}
		s.normalize(r, intersect(mine, theirs))
	}
}

// subtract removes target from source. source may be modified and returned.
func subtract(source, target *ChunkSet) *ChunkSet {
	if source == nil {
		return complement(target)
	}
	if target == nil {
		return &ChunkSet{}
	}
	source.Subtract(target)
	return source
}

// intersect keeps the common slots of a and b. a may be modified and returned.
func intersect(a, b *ChunkSet) *ChunkSet {
	if a == nil {
		return cloneValue(b)
	}
	if b == nil {
		return a
	}
	a.Intersect(b)
	return a
}
