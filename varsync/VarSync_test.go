package varsync

import (
	"fmt"
	"net/http/httptest"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// countingSource serves a fixed variable set and counts fetches.
type countingSource struct {
	calls     int
	failUntil int
	variables map[string][]Variable
}

func (s *countingSource) GetVariables(names []string) (
	map[string][]Variable, error) {
	s.calls++
	if s.calls <= s.failUntil {
		return nil, fmt.Errorf("unavailable")
	}
	out := map[string][]Variable{}
	for _, name := range names {
		variables, ok := s.variables[name]
		if !ok {
			return nil, fmt.Errorf("unknown collection %v", name)
		}
		out[name] = variables
	}
	return out, nil
}

func testVariables() map[string][]Variable {
	return map[string][]Variable{
		"policy": {
			{Name: "PolicyL0W", Shape: []int{2, 2},
				Values: []float64{1, 2, 3, 4}},
			{Name: "PolicyL0B", Shape: []int{1, 2}, Values: []float64{5, 6}},
		},
	}
}

func TestClientUpdateIfStaleGatesOnPeriod(t *testing.T) {
	source := &countingSource{variables: testVariables()}
	applied := 0
	client, err := NewClient(source, []string{"policy"}, 10,
		func(map[string][]Variable) error {
			applied++
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}

	// First call always fetches; the next fetch waits out the period.
	for step := int64(0); step < 25; step++ {
		if err := client.UpdateIfStale(step); err != nil {
			t.Fatal(err)
		}
	}
	// Fetches at steps 0, 10, 20.
	if applied != 3 {
		t.Errorf("applied fetches \n\twant(3)\n\thave(%v)", applied)
	}
	if source.calls != 3 {
		t.Errorf("source calls \n\twant(3)\n\thave(%v)", source.calls)
	}
}

func TestClientUpdateAndWaitRetries(t *testing.T) {
	source := &countingSource{variables: testVariables(), failUntil: 3}
	client, err := NewClient(source, []string{"policy"}, 1,
		func(map[string][]Variable) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	client.retryWait = 0

	if err := client.UpdateAndWait(); err != nil {
		t.Fatal(err)
	}
	if source.calls != 4 {
		t.Errorf("expected three failed fetches before success "+
			"\n\twant(4)\n\thave(%v)", source.calls)
	}
}

func TestApplySetsLearnables(t *testing.T) {
	g := G.NewGraph()
	weights := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 2),
		G.WithName("PolicyL0W"), G.WithInit(G.Zeroes()))
	bias := G.NewMatrix(g, tensor.Float64, G.WithShape(1, 2),
		G.WithName("PolicyL0B"), G.WithInit(G.Zeroes()))

	variables := testVariables()["policy"]
	if err := Apply(G.Nodes{weights, bias}, variables); err != nil {
		t.Fatal(err)
	}

	have := weights.Value().Data().([]float64)
	for i, want := range []float64{1, 2, 3, 4} {
		if have[i] != want {
			t.Errorf("weight %v \n\twant(%v)\n\thave(%v)", i, want, have[i])
		}
	}

	// The applied copy must be independent of the fetched slice.
	variables[0].Values[0] = 99
	if weights.Value().Data().([]float64)[0] == 99 {
		t.Error("Apply should copy values, not alias them")
	}
}

func TestApplyRejectsSizeMismatch(t *testing.T) {
	g := G.NewGraph()
	weights := G.NewMatrix(g, tensor.Float64, G.WithShape(3, 3),
		G.WithName("PolicyL0W"), G.WithInit(G.Zeroes()))

	err := Apply(G.Nodes{weights}, testVariables()["policy"][:1])
	if err == nil {
		t.Error("mismatched variable size should error")
	}
}

func TestHTTPRoundTrip(t *testing.T) {
	source := &countingSource{variables: testVariables()}
	server := httptest.NewServer(Server(source))
	defer server.Close()

	remote := NewHTTPSource(server.URL)
	variables, err := remote.GetVariables([]string{"policy"})
	if err != nil {
		t.Fatal(err)
	}

	policy := variables["policy"]
	if len(policy) != 2 {
		t.Fatalf("policy variables \n\twant(2)\n\thave(%v)", len(policy))
	}
	if policy[0].Name != "PolicyL0W" || policy[0].Values[3] != 4 {
		t.Errorf("unexpected first variable: %+v", policy[0])
	}

	if _, err := remote.GetVariables([]string{"nonesuch"}); err == nil {
		t.Error("unknown collection should error")
	}
}
