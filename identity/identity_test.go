package identity

import (
	"fmt"
	"sync"
	"testing"

	gc "gopkg.in/check.v1"
	"golang.org/x/xerrors"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(ManagerTestSuite))

type ManagerTestSuite struct {
	m *InMemoryManager
}

func (s *ManagerTestSuite) SetUpTest(c *gc.C) {
	s.m = NewInMemoryManager()
}

func (s *ManagerTestSuite) TestBindIsMonotonic(c *gc.C) {
	var last uint64
	for i := 0; i < 10; i++ {
		id, err := s.m.Bind(fmt.Sprintf("key-%d", i))
		c.Assert(err, gc.IsNil)
		c.Assert(id > last, gc.Equals, true, gc.Commentf("id %d not greater than %d", id, last))
		last = id
	}
}

func (s *ManagerTestSuite) TestBindExistingReturnsSameID(c *gc.C) {
	id1, err := s.m.Bind("key")
	c.Assert(err, gc.IsNil)
	id2, err := s.m.Bind("key")
	c.Assert(err, gc.IsNil)
	c.Assert(id2, gc.Equals, id1)
}

func (s *ManagerTestSuite) TestResolve(c *gc.C) {
	_, ok := s.m.Resolve("key")
	c.Assert(ok, gc.Equals, false)

	id, err := s.m.Bind("key")
	c.Assert(err, gc.IsNil)

	got, ok := s.m.Resolve("key")
	c.Assert(ok, gc.Equals, true)
	c.Assert(got, gc.Equals, id)
}

func (s *ManagerTestSuite) TestRebind(c *gc.C) {
	_, _, err := s.m.Rebind("key")
	c.Assert(xerrors.Is(err, ErrUnknownKey), gc.Equals, true)

	first, err := s.m.Bind("key")
	c.Assert(err, gc.IsNil)

	oldID, newID, err := s.m.Rebind("key")
	c.Assert(err, gc.IsNil)
	c.Assert(oldID, gc.Equals, first)
	c.Assert(newID > first, gc.Equals, true)

	got, ok := s.m.Resolve("key")
	c.Assert(ok, gc.Equals, true)
	c.Assert(got, gc.Equals, newID)
}

func (s *ManagerTestSuite) TestConcurrentBinds(c *gc.C) {
	var wg sync.WaitGroup
	numWorkers, perWorker := 8, 100
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := s.m.Bind(fmt.Sprintf("key-%d-%d", w, i))
				c.Check(err, gc.IsNil)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for w := 0; w < numWorkers; w++ {
		for i := 0; i < perWorker; i++ {
			id, ok := s.m.Resolve(fmt.Sprintf("key-%d-%d", w, i))
			c.Assert(ok, gc.Equals, true)
			c.Assert(seen[id], gc.Equals, false, gc.Commentf("id %d assigned twice", id))
			seen[id] = true
		}
	}
}
