package docstore

import (
	"fmt"
	"sync"

	gc "gopkg.in/check.v1"
	"golang.org/x/xerrors"
)

// SuiteBase defines a re-usable set of document-store tests that can be
// executed against any type that implements docstore.Store.
type SuiteBase struct {
	s Store
}

// SetStore configures the test-suite to run all tests against s.
func (s *SuiteBase) SetStore(store Store) {
	s.s = store
}

// TestInsertGet verifies the insert and lookup logic.
func (s *SuiteBase) TestInsertGet(c *gc.C) {
	doc := &Document{ID: 1, Properties: map[string]string{"Title": "first", "Price": "10"}}
	c.Assert(s.s.Insert(doc), gc.IsNil)

	stored, err := s.s.Get(1)
	c.Assert(err, gc.IsNil)
	c.Assert(stored, gc.DeepEquals, doc)

	// Returned documents must be copies.
	stored.Properties["Title"] = "mutated"
	again, err := s.s.Get(1)
	c.Assert(err, gc.IsNil)
	c.Assert(again.Properties["Title"], gc.Equals, "first")

	_, err = s.s.Get(42)
	c.Assert(xerrors.Is(err, ErrNotFound), gc.Equals, true)
}

// TestInsertDuplicate verifies that live ids cannot be reused.
func (s *SuiteBase) TestInsertDuplicate(c *gc.C) {
	doc := &Document{ID: 1, Properties: map[string]string{"Title": "first"}}
	c.Assert(s.s.Insert(doc), gc.IsNil)

	err := s.s.Insert(&Document{ID: 1, Properties: map[string]string{"Title": "second"}})
	c.Assert(xerrors.Is(err, ErrExists), gc.Equals, true)

	// A removed slot can be reinserted (full-update path).
	removed, err := s.s.Remove(1)
	c.Assert(err, gc.IsNil)
	c.Assert(removed, gc.Equals, true)
	c.Assert(s.s.Insert(&Document{ID: 1, Properties: map[string]string{"Title": "third"}}), gc.IsNil)

	deleted, err := s.s.IsDeleted(1)
	c.Assert(err, gc.IsNil)
	c.Assert(deleted, gc.Equals, false)
}

// TestGetProperty verifies the single-property lookup.
func (s *SuiteBase) TestGetProperty(c *gc.C) {
	doc := &Document{ID: 3, Properties: map[string]string{"Title": "first"}}
	c.Assert(s.s.Insert(doc), gc.IsNil)

	v, err := s.s.GetProperty(3, "Title")
	c.Assert(err, gc.IsNil)
	c.Assert(v, gc.Equals, "first")

	_, err = s.s.GetProperty(3, "Missing")
	c.Assert(xerrors.Is(err, ErrUnknownProperty), gc.Equals, true)

	_, err = s.s.GetProperty(42, "Title")
	c.Assert(xerrors.Is(err, ErrNotFound), gc.Equals, true)
}

// TestUpdatePartial verifies the targeted property rewrite.
func (s *SuiteBase) TestUpdatePartial(c *gc.C) {
	doc := &Document{ID: 2, Properties: map[string]string{"Title": "first", "Price": "10"}}
	c.Assert(s.s.Insert(doc), gc.IsNil)

	c.Assert(s.s.UpdatePartial(2, map[string]string{"Price": "20"}), gc.IsNil)

	stored, err := s.s.Get(2)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.Properties["Price"], gc.Equals, "20")
	c.Assert(stored.Properties["Title"], gc.Equals, "first")

	err = s.s.UpdatePartial(42, map[string]string{"Price": "20"})
	c.Assert(xerrors.Is(err, ErrNotFound), gc.Equals, true)
}

// TestRemoveIsIdempotent verifies delete semantics.
func (s *SuiteBase) TestRemoveIsIdempotent(c *gc.C) {
	doc := &Document{ID: 5, Properties: map[string]string{"Title": "first"}}
	c.Assert(s.s.Insert(doc), gc.IsNil)

	removed, err := s.s.Remove(5)
	c.Assert(err, gc.IsNil)
	c.Assert(removed, gc.Equals, true)

	removed, err = s.s.Remove(5)
	c.Assert(err, gc.IsNil)
	c.Assert(removed, gc.Equals, false)

	removed, err = s.s.Remove(42)
	c.Assert(err, gc.IsNil)
	c.Assert(removed, gc.Equals, false)

	deleted, err := s.s.IsDeleted(5)
	c.Assert(err, gc.IsNil)
	c.Assert(deleted, gc.Equals, true)

	// Removed documents stay readable for update paths.
	stored, err := s.s.Get(5)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.Properties["Title"], gc.Equals, "first")
}

// TestMaxID verifies that MaxID tracks the highest id ever inserted.
func (s *SuiteBase) TestMaxID(c *gc.C) {
	max, err := s.s.MaxID()
	c.Assert(err, gc.IsNil)
	c.Assert(max, gc.Equals, uint64(0))

	for _, id := range []uint64{3, 1, 7} {
		c.Assert(s.s.Insert(&Document{ID: id, Properties: map[string]string{"Title": fmt.Sprint(id)}}), gc.IsNil)
	}

	max, err = s.s.MaxID()
	c.Assert(err, gc.IsNil)
	c.Assert(max, gc.Equals, uint64(7))

	// Removing the max document does not lower the watermark.
	_, err = s.s.Remove(7)
	c.Assert(err, gc.IsNil)
	max, err = s.s.MaxID()
	c.Assert(err, gc.IsNil)
	c.Assert(max, gc.Equals, uint64(7))
}

// TestDocumentsIteration verifies that the iterator visits exactly the live
// documents.
func (s *SuiteBase) TestDocumentsIteration(c *gc.C) {
	for id := uint64(1); id <= 5; id++ {
		c.Assert(s.s.Insert(&Document{ID: id, Properties: map[string]string{"Title": fmt.Sprint(id)}}), gc.IsNil)
	}
	_, err := s.s.Remove(3)
	c.Assert(err, gc.IsNil)

	it, err := s.s.Documents()
	c.Assert(err, gc.IsNil)

	seen := make(map[uint64]string)
	for it.Next() {
		doc := it.Document()
		seen[doc.ID] = doc.Properties["Title"]
	}
	c.Assert(it.Error(), gc.IsNil)
	c.Assert(it.Close(), gc.IsNil)
	c.Assert(seen, gc.DeepEquals, map[uint64]string{1: "1", 2: "2", 4: "4", 5: "5"})
}

// TestConcurrentReaders verifies that status-style reads can proceed
// concurrently with each other.
func (s *SuiteBase) TestConcurrentReaders(c *gc.C) {
	for id := uint64(1); id <= 50; id++ {
		c.Assert(s.s.Insert(&Document{ID: id, Properties: map[string]string{"Title": fmt.Sprint(id)}}), gc.IsNil)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := uint64(1); id <= 50; id++ {
				_, err := s.s.Get(id)
				c.Check(err, gc.IsNil)
			}
		}()
	}
	wg.Wait()
}
