package bloom

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBloomFilter_NoFalseNegatives(t *testing.T) {
	bf := NewWithEstimates(1000, 0.01)
	for i := 0; i < 1000; i++ {
		bf.Add([]byte(fmt.Sprintf("key-%d", i)))
	}
	for i := 0; i < 1000; i++ {
		if !bf.Contains([]byte(fmt.Sprintf("key-%d", i))) {
			t.Fatalf("false negative for key-%d", i)
		}
	}
	if bf.Count() != 1000 {
		t.Errorf("Count = %d, want 1000", bf.Count())
	}
}

func TestBloomFilter_CloneIsIndependent(t *testing.T) {
	bf := NewWithEstimates(100, 0.01)
	bf.Add([]byte("a"))
	cp := bf.Clone()
	cp.Add([]byte("b"))

	if !cp.Contains([]byte("a")) || !cp.Contains([]byte("b")) {
		t.Error("clone lost items")
	}
	if bf.Count() != 1 {
		t.Errorf("original count = %d, want 1", bf.Count())
	}
}

func TestBloomFilter_Saturated(t *testing.T) {
	bf := NewWithEstimates(2, 0.01)
	bf.Add([]byte("a"))
	bf.Add([]byte("b"))
	if bf.Saturated() {
		t.Error("filter at capacity reported saturated")
	}
	bf.Add([]byte("c"))
	if !bf.Saturated() {
		t.Error("filter over capacity not saturated")
	}
}

func TestOptimalParameters(t *testing.T) {
	bits, hashes := OptimalParameters(1000, 0.01)
	if bits < 9000 || bits > 10000 {
		t.Errorf("bits = %d, want ~9586", bits)
	}
	if hashes != 7 {
		t.Errorf("hashes = %d, want 7", hashes)
	}
}

func TestProperty_AddedItemsAlwaysContained(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("every added item is contained", prop.ForAll(
		func(items []string) bool {
			bf := NewWithEstimates(len(items)+1, 0.01)
			for _, it := range items {
				bf.Add([]byte(it))
			}
			for _, it := range items {
				if !bf.Contains([]byte(it)) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
