package exam

// Tests are immutable once saved, so cached copies never need invalidation
// beyond being replaced by a newer SaveTest.

func (s *Service) getCachedTest(testID string) (Test, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	test, ok := s.testCache[testID]
	return test, ok
}

func (s *Service) setCachedTest(test Test) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.testCache[test.ID] = test
}
