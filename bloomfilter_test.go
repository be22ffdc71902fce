package flexijoin

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	bf := newBloomFilter(100, 0.01)
	present := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("key-%d", i)
		bf.add(k)
		present = append(present, k)
	}
	for _, k := range present {
		assert.True(t, bf.test(k), "bloom filter must never reject a present key")
	}
}

func TestBloomFilterRejectsObviousAbsence(t *testing.T) {
	bf := newBloomFilter(10, 0.001)
	bf.add("apple")
	bf.add("banana")
	assert.False(t, bf.test("zzz-definitely-absent-zzz"))
}

func TestBloomFilterDegenerateSizing(t *testing.T) {
	bf := newBloomFilter(0, -1)
	assert.NotZero(t, bf.m)
	assert.NotZero(t, bf.k)
}
