package msync

import (
	"sync"
)

func (s *unitTestSuite) TestTypedAtomic() {
	type phase string

	ta := NewTypedAtomic(phase("idle"))
	s.Require().Equal(phase("idle"), ta.Load())

	ta.Store("copying")
	s.Require().Equal(phase("copying"), ta.Load())

	// For -race.
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ta.Load()
			ta.Store(phase(rune('a' + i%26)))
		}()
	}
	wg.Wait()
}

func (s *unitTestSuite) TestTypedAtomicZeroValue() {
	type progress struct {
		Done  int
		Total int
	}

	var ta TypedAtomic[progress]
	s.Require().Equal(progress{}, ta.Load())

	ta.Store(progress{3, 9})
	s.Require().Equal(progress{3, 9}, ta.Load())

	var ptr TypedAtomic[*progress]
	s.Require().Nil(ptr.Load())
}

func (s *unitTestSuite) TestDataGuard() {
	guard := NewDataGuard(map[int]string{})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			guard.Store(func(m map[int]string) map[int]string {
				m[i] = "x"
				return m
			})
		}()
	}
	wg.Wait()

	guard.Load(func(m map[int]string) {
		s.Assert().Len(m, 50)
	})
}
