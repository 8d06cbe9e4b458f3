package analyzer

import (
	"testing"

	gc "gopkg.in/check.v1"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(SimpleTestSuite))

type SimpleTestSuite struct{}

func (s *SimpleTestSuite) TestAnalyze(c *gc.C) {
	terms, err := NewSimple().Analyze("Quick brown FOX", Spec{AnalyzerID: "la_sia"})
	c.Assert(err, gc.IsNil)
	c.Assert(terms, gc.DeepEquals, []Term{
		{Text: "quick", Position: 0},
		{Text: "brown", Position: 1},
		{Text: "fox", Position: 2},
	})
}

func (s *SimpleTestSuite) TestAnalyzeStripsMarkup(c *gc.C) {
	terms, err := NewSimple().Analyze("<p>hello <b>world</b></p>", Spec{})
	c.Assert(err, gc.IsNil)
	c.Assert(terms, gc.DeepEquals, []Term{
		{Text: "hello", Position: 0},
		{Text: "world", Position: 1},
	})
}

func (s *SimpleTestSuite) TestAnalyzeEmpty(c *gc.C) {
	terms, err := NewSimple().Analyze("   ", Spec{})
	c.Assert(err, gc.IsNil)
	c.Assert(terms, gc.HasLen, 0)
}
