package visualization

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot/plotter"

	"ptvstitch/internal/models"
	"ptvstitch/pkg/trajectory"
)

func testStore(t *testing.T) *trajectory.Store {
	t.Helper()
	samples := []models.Sample{
		{TrajectoryID: 1, Position: r3.Vec{X: 0, Y: 1, Z: 2}, Time: 0},
		{TrajectoryID: 1, Position: r3.Vec{X: 1, Y: 2, Z: 3}, Time: 1},
		{TrajectoryID: 1, Position: r3.Vec{X: 2, Y: 3, Z: 4}, Time: 2, Interpolated: true},
		{TrajectoryID: 2, Position: r3.Vec{X: 5, Y: 5, Z: 5}, Time: 0},
		{TrajectoryID: 2, Position: r3.Vec{X: 6, Y: 4, Z: 5}, Time: 1},
		{TrajectoryID: models.OrphanID, Position: r3.Vec{X: 3, Y: 3, Z: 3}, Time: 0},
	}
	store, err := trajectory.NewStore(samples)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

// TestNewPlotter verifies plane parsing
func TestNewPlotter(t *testing.T) {
	for _, plane := range []string{"", "xy", "xz", "yz", "YZ"} {
		if _, err := NewPlotter(plane); err != nil {
			t.Errorf("NewPlotter(%q) failed: %v", plane, err)
		}
	}

	if _, err := NewPlotter("zx"); err == nil {
		t.Error("Expected error for invalid plane")
	}

	p, _ := NewPlotter("")
	if p.Plane() != "xy" {
		t.Errorf("Expected default plane xy, got %s", p.Plane())
	}
}

// TestProject verifies that positions are mapped onto the chosen plane
func TestProject(t *testing.T) {
	s := []models.Sample{{Position: r3.Vec{X: 1, Y: 2, Z: 3}}}

	cases := map[string]plotter.XY{
		"xy": {X: 1, Y: 2},
		"xz": {X: 1, Y: 3},
		"yz": {X: 2, Y: 3},
	}
	for plane, want := range cases {
		p, err := NewPlotter(plane)
		if err != nil {
			t.Fatal(err)
		}
		got := p.Project(s)
		if len(got) != 1 || got[0] != want {
			t.Errorf("%s: expected %v, got %v", plane, want, got)
		}
	}
}

// TestSavePNG verifies that a figure is written to disk
func TestSavePNG(t *testing.T) {
	store := testStore(t)
	p, err := NewPlotter("xz")
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "plots", "traj.png")
	if err := p.SavePNG(store, path); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected plot file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Plot file is empty")
	}
}

// TestSaveProjections verifies one file per plane
func TestSaveProjections(t *testing.T) {
	store := testStore(t)
	dir := t.TempDir()

	files, err := SaveProjections(store, dir, "run")
	if err != nil {
		t.Fatalf("SaveProjections failed: %v", err)
	}
	if len(files) != len(Planes) {
		t.Fatalf("Expected %d files, got %d", len(Planes), len(files))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("Missing projection %s: %v", f, err)
		}
	}
}
