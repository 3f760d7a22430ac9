package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_ExactMatchWinsOverPattern(t *testing.T) {
	mapping := NewMapping(
		map[string]string{"code-snippets": "bge-large"},
		[]PatternRule{{Substring: "code", ModelID: "codebert"}},
		"bge-small",
	)

	require.Equal(t, "bge-large", Resolve(mapping, "code-snippets"))
}

func TestResolve_PatternMatchInOrder(t *testing.T) {
	mapping := NewMapping(
		nil,
		[]PatternRule{
			{Substring: "code", ModelID: "codebert"},
			{Substring: "doc", ModelID: "bge-large"},
		},
		"bge-small",
	)

	require.Equal(t, "codebert", Resolve(mapping, "my-code-repo"))
	require.Equal(t, "bge-large", Resolve(mapping, "docs-archive"))
}

func TestResolve_FirstPatternWinsOnOverlap(t *testing.T) {
	mapping := NewMapping(
		nil,
		[]PatternRule{
			{Substring: "co", ModelID: "first"},
			{Substring: "code", ModelID: "second"},
		},
		"default",
	)

	require.Equal(t, "first", Resolve(mapping, "code-repo"))
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	mapping := NewMapping(
		map[string]string{"exact": "m1"},
		[]PatternRule{{Substring: "pattern", ModelID: "m2"}},
		"bge-small",
	)

	require.Equal(t, "bge-small", Resolve(mapping, "unrelated-name"))
}

func TestResolve_IgnoresEmptyPatternRule(t *testing.T) {
	mapping := NewMapping(nil, []PatternRule{{Substring: "", ModelID: "should-never-win"}}, "default")
	require.Equal(t, "default", Resolve(mapping, "anything"))
}

func TestMapping_ModelIDs_DedupesAndIncludesDefault(t *testing.T) {
	mapping := NewMapping(
		map[string]string{"a": "m1", "b": "m2"},
		[]PatternRule{{Substring: "x", ModelID: "m2"}, {Substring: "y", ModelID: "m3"}},
		"m1",
	)

	ids := mapping.ModelIDs()
	require.ElementsMatch(t, []string{"m1", "m2", "m3"}, ids)
}

func TestMapping_ExactAndPatterns_ReturnDefensiveCopies(t *testing.T) {
	mapping := NewMapping(map[string]string{"a": "m1"}, []PatternRule{{Substring: "x", ModelID: "m2"}}, "m1")

	exact := mapping.Exact()
	exact["a"] = "mutated"
	require.Equal(t, "m1", Resolve(mapping, "a"))

	patterns := mapping.Patterns()
	patterns[0].ModelID = "mutated"
	require.Equal(t, "m2", Resolve(mapping, "xyz"))
}
