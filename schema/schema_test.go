package schema

import (
	"testing"
	"time"

	gc "gopkg.in/check.v1"
	"golang.org/x/xerrors"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(SchemaTestSuite))

type SchemaTestSuite struct{}

func (s *SchemaTestSuite) TestLookupIsCaseInsensitive(c *gc.C) {
	sch := mustSchema(c, []Property{
		{Name: "DOCID", Type: TypeString},
		{Name: "DATE", Type: TypeString},
		{Name: "Title", Type: TypeString, IsIndex: true, IsAnalyzed: true},
	})

	p, ok := sch.Lookup("title")
	c.Assert(ok, gc.Equals, true)
	c.Assert(p.Name, gc.Equals, "Title")
	c.Assert(p.ID, gc.Equals, uint32(3))

	_, ok = sch.Lookup("missing")
	c.Assert(ok, gc.Equals, false)
}

func (s *SchemaTestSuite) TestIDsStartFromOne(c *gc.C) {
	sch := mustSchema(c, []Property{
		{Name: "DOCID", Type: TypeString},
		{Name: "DATE", Type: TypeString},
	})
	p, ok := sch.Lookup("DOCID")
	c.Assert(ok, gc.Equals, true)
	c.Assert(p.ID, gc.Equals, uint32(1))
	c.Assert(sch.NumProperties(), gc.Equals, 2)
}

func (s *SchemaTestSuite) TestTimestampPropertyRequired(c *gc.C) {
	_, err := New([]Property{
		{Name: "DOCID", Type: TypeString},
		{Name: "Title", Type: TypeString},
	})
	c.Assert(xerrors.Is(err, ErrNoTimestampProperty), gc.Equals, true)
}

func (s *SchemaTestSuite) TestDuplicateNameRejected(c *gc.C) {
	_, err := New([]Property{
		{Name: "DATE", Type: TypeString},
		{Name: "Title", Type: TypeString},
		{Name: "title", Type: TypeString},
	})
	c.Assert(xerrors.Is(err, ErrDuplicateProperty), gc.Equals, true)
}

func (s *SchemaTestSuite) TestAliases(c *gc.C) {
	sch := mustSchema(c, []Property{
		{Name: "DOCID", Type: TypeString},
		{Name: "DATE", Type: TypeString},
		{Name: "Title", Type: TypeString, IsIndex: true, IsAnalyzed: true},
		{Name: "Title_unigram", Type: TypeString, IsIndex: true, IsAnalyzed: true, AliasOf: "Title"},
	})

	aliases := sch.AliasesOf("title")
	c.Assert(aliases, gc.HasLen, 1)
	c.Assert(aliases[0].Name, gc.Equals, "Title_unigram")
	c.Assert(sch.AliasesOf("Title_unigram"), gc.HasLen, 0)
}

func (s *SchemaTestSuite) TestAliasUnknownSource(c *gc.C) {
	_, err := New([]Property{
		{Name: "DATE", Type: TypeString},
		{Name: "Copy", Type: TypeString, AliasOf: "Original"},
	})
	c.Assert(xerrors.Is(err, ErrUnknownAliasSource), gc.Equals, true)
}

func (s *SchemaTestSuite) TestCanonicalTimestamp(c *gc.C) {
	for _, raw := range []string{
		"20091009163011",
		"2009-10-09 16:30:11",
		"2009-10-09T16:30:11",
	} {
		got, err := CanonicalTimestamp(raw)
		c.Assert(err, gc.IsNil, gc.Commentf("raw %q", raw))
		c.Assert(got, gc.Equals, "20091009163011")
	}

	got, err := CanonicalTimestamp("20091009")
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, "20091009000000")

	_, err = CanonicalTimestamp("next tuesday")
	c.Assert(xerrors.Is(err, ErrBadTimestamp), gc.Equals, true)
}

func (s *SchemaTestSuite) TestFormatTimestamp(c *gc.C) {
	at := time.Date(2010, 12, 1, 12, 0, 59, 0, time.UTC)
	c.Assert(FormatTimestamp(at), gc.Equals, "20101201120059")
}

func mustSchema(c *gc.C, props []Property) *Schema {
	sch, err := New(props)
	c.Assert(err, gc.IsNil)
	return sch
}
