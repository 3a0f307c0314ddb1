package vidmem

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Storage", func() {
	var s *Storage

	BeforeEach(func() {
		s = NewStorage(3 * 4096)
	})

	It("should read zero from untouched memory", func() {
		data, err := s.Read(100, 8)

		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(Equal(make([]byte, 8)))
	})

	It("should write and read across unit boundaries", func() {
		data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

		Expect(s.Write(4092, data)).To(Succeed())

		res, err := s.Read(4092, 8)
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(data))
	})

	It("should reject accesses past capacity", func() {
		_, err := s.Read(3*4096-2, 4)
		Expect(err).To(MatchError(ErrOutOfRange))

		Expect(s.Write(3*4096, []byte{1})).To(MatchError(ErrOutOfRange))
	})

	It("should read and write words little endian", func() {
		Expect(s.Write32(8, 0x11223344)).To(Succeed())

		b, _ := s.Read(8, 4)
		Expect(b).To(Equal([]byte{0x44, 0x33, 0x22, 0x11}))

		v, err := s.Read32(8)
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(uint32(0x11223344)))
	})

	It("should zero a range", func() {
		Expect(s.Write32(4096, 0xffffffff)).To(Succeed())
		Expect(s.Write32(4100, 0xffffffff)).To(Succeed())

		Expect(s.Zero(4096, 4)).To(Succeed())

		v, _ := s.Read32(4096)
		Expect(v).To(BeZero())
		v, _ = s.Read32(4100)
		Expect(v).To(Equal(uint32(0xffffffff)))
	})
})
