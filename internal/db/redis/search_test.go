package redis

import (
	"math"
	"testing"

	"github.com/folio-cloud/foliorag/internal/db"
)

func TestKNNArgs_LimitMatchesK(t *testing.T) {
	args := knnArgs(&db.KNNQuery{
		IndexName: "idx:chunks",
		Vector:    []float32{1, 0},
		K:         25,
		Kinds:     []string{"projects"},
	})

	for i := 0; i+2 < len(args); i++ {
		if args[i] == "LIMIT" {
			if args[i+1] != "0" || args[i+2] != "25" {
				t.Fatalf("LIMIT args = %v, want 0 25", args[i+1:i+3])
			}
			return
		}
	}
	t.Fatalf("no LIMIT clause in %v; K over the server page default gets truncated", args)
}

func TestKNNArgs_KindFilter(t *testing.T) {
	args := knnArgs(&db.KNNQuery{
		IndexName: "idx:chunks",
		Vector:    []float32{1, 0},
		K:         5,
		Kinds:     []string{"skills", "experience"},
	})
	if args[1] != "(@kind:{skills|experience})=>[KNN 5 @vector $BLOB]" {
		t.Errorf("query = %q", args[1])
	}
}

func TestBuildKindFilter(t *testing.T) {
	if got := buildKindFilter(nil); got != "" {
		t.Errorf("empty kinds = %q, want empty", got)
	}
	if got := buildKindFilter([]string{"skills"}); got != "@kind:{skills}" {
		t.Errorf("got %q", got)
	}
	if got := buildKindFilter([]string{"skills", "experience"}); got != "@kind:{skills|experience}" {
		t.Errorf("got %q", got)
	}
}

func TestEscapeQuery(t *testing.T) {
	if got := escapeQuery("c++ (dev)"); got != `c++ \(dev\)` {
		t.Errorf("got %q", got)
	}
	if got := escapeQuery("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
}

func TestVectorToBytes(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	buf := []byte(vectorToBytes(vec))
	if len(buf) != 12 {
		t.Fatalf("len = %d, want 12", len(buf))
	}
	for i, want := range vec {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		if got := math.Float32frombits(bits); got != want {
			t.Errorf("component %d = %f, want %f", i, got, want)
		}
	}
}
