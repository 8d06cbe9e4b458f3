package memory

import (
	"testing"

	"Doc_Indexer/docstore"

	gc "gopkg.in/check.v1"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(InMemoryStoreTestSuite))

type InMemoryStoreTestSuite struct {
	docstore.SuiteBase
}

func (s *InMemoryStoreTestSuite) SetUpTest(c *gc.C) {
	s.SetStore(NewInMemoryStore())
}
