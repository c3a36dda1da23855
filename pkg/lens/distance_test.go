package lens

import "testing"

// a -> b -> c -> d, e -> b, f isolated
var chain = []Edge{
	{Source: "a", Target: "b"},
	{Source: "b", Target: "c"},
	{Source: "c", Target: "d"},
	{Source: "e", Target: "b"},
	{Source: "f", Target: "f"},
}

func TestComputeDistances(t *testing.T) {
	got := ComputeDistances(chain, []string{"c"})
	want := map[string]int{"c": 0, "b": 1, "d": 1, "a": 2, "e": 2}

	if len(got) != len(want) {
		t.Fatalf("distances = %v, want %v", got, want)
	}
	for id, d := range want {
		if got[id] != d {
			t.Errorf("distance(%s) = %d, want %d", id, got[id], d)
		}
	}
	if _, ok := got["f"]; ok {
		t.Error("unreachable node should be absent")
	}
}

func TestComputeDistancesMultipleSelected(t *testing.T) {
	got := ComputeDistances(chain, []string{"a", "d"})
	if got["b"] != 1 || got["c"] != 1 || got["e"] != 2 {
		t.Errorf("distances = %v", got)
	}
}

func TestComputeDistancesNoSelection(t *testing.T) {
	if got := ComputeDistances(chain, nil); len(got) != 0 {
		t.Errorf("distances = %v, want empty", got)
	}
}

func TestViewVisible(t *testing.T) {
	tests := []struct {
		name string
		view View
		want []string
	}{
		{"focus only", View{Focus: []string{"b"}, MaxDistance: 0}, []string{"b"}},
		{"one hop", View{Focus: []string{"b"}, MaxDistance: 1}, []string{"a", "b", "c", "e"}},
		{"self loop", View{Focus: []string{"f"}, MaxDistance: 3}, []string{"f"}},
		{"unknown focus", View{Focus: []string{"zz"}, MaxDistance: 1}, []string{"zz"}},
		{"no focus", View{MaxDistance: 5}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.view.Visible(chain)
			if len(got) != len(tt.want) {
				t.Fatalf("Visible() = %v, want %v", got, tt.want)
			}
			for _, id := range tt.want {
				if _, ok := got[id]; !ok {
					t.Errorf("%s not visible", id)
				}
			}
		})
	}
}
