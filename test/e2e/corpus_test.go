package e2e

import (
	"strings"
	"testing"
)

func TestBuildCorpus_ReturnsRequestedScenarios(t *testing.T) {
	c := BuildCorpus(100)
	if c.TotalScenarios != 100 || len(c.Scenarios) != 100 {
		t.Errorf("expected 100 scenarios, got %d/%d", c.TotalScenarios, len(c.Scenarios))
	}
	keys := make(map[string]bool)
	for _, s := range c.Scenarios {
		if keys[s.Key] {
			t.Errorf("duplicate key %q", s.Key)
		}
		keys[s.Key] = true
	}
}

func TestBuildCorpus_QueryTestCasesExist(t *testing.T) {
	c := BuildCorpus(100)
	if c.TotalQueries != len(features) {
		t.Fatalf("expected %d query test cases, got %d", len(features), c.TotalQueries)
	}
	for i, tc := range c.TestCases {
		if tc.Query == "" {
			t.Errorf("test case %d: empty query", i)
		}
		if tc.ExpectedKey == "" {
			t.Errorf("test case %d: no expected key", i)
		}
	}
}

func TestBuildCorpus_ExpectedScenarioContainsQueryPhrase(t *testing.T) {
	c := BuildCorpus(60)
	byKey := make(map[string]CorpusScenario)
	for _, s := range c.Scenarios {
		byKey[s.Key] = s
	}
	for _, tc := range c.TestCases {
		s, ok := byKey[tc.ExpectedKey]
		if !ok {
			t.Errorf("expected key %q not in corpus", tc.ExpectedKey)
			continue
		}
		if !containsPhrase(s, tc.Query) {
			t.Errorf("scenario %q (title=%q) does not contain query phrase %q", s.Key, s.Title, tc.Query)
		}
	}
}

func TestBuildCorpus_FeatureWordsAreDistinct(t *testing.T) {
	owner := make(map[string]int)
	for i, f := range features {
		for _, w := range strings.Fields(f.phrase) {
			if prev, ok := owner[w]; ok && prev != i {
				t.Errorf("word %q appears in features %d and %d", w, prev, i)
			}
			owner[w] = i
		}
	}
}

func TestCorpus_ToScenarioInputs(t *testing.T) {
	c := BuildCorpus(45)
	inputs := c.ToScenarioInputs()
	if len(inputs) != len(c.Scenarios) {
		t.Fatalf("expected %d inputs, got %d", len(c.Scenarios), len(inputs))
	}
	for i := range inputs {
		if inputs[i].Title != c.Scenarios[i].Title {
			t.Errorf("input[%d].Title = %q, want %q", i, inputs[i].Title, c.Scenarios[i].Title)
		}
	}
	if !strings.HasPrefix(c.Scenarios[len(features)].Title, "variant 1 ") {
		t.Errorf("repeated feature should get a variant prefix, got %q", c.Scenarios[len(features)].Title)
	}
}
