package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ScaleRound", func() {
	It("scales exactly", func() {
		Expect(ScaleRound(10, 3, 2)).To(Equal(uint64(15)))
		Expect(ScaleRound(0, 3, 2)).To(BeZero())
	})

	It("rounds to nearest", func() {
		Expect(ScaleRound(1, 1, 2)).To(Equal(uint64(1)))  // 0.5 rounds up
		Expect(ScaleRound(1, 1, 3)).To(Equal(uint64(0)))  // 0.33 rounds down
		Expect(ScaleRound(2, 1, 3)).To(Equal(uint64(1)))  // 0.67 rounds up
		Expect(ScaleRound(7, 10, 4)).To(Equal(uint64(18))) // 17.5 rounds up
	})

	It("panics on a zero denominator", func() {
		Expect(func() { ScaleRound(1, 1, 0) }).To(Panic())
	})
})
