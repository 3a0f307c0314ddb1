package monitoring

import (
	"reflect"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type sampleStruct struct {
	field1 int
	field2 string
	field3 *sampleStruct
	field4 []sampleStruct
	field5 [2]int
}

var _ = Describe("Monitor", func() {
	var (
		m *Monitor
	)

	BeforeEach(func() {
		m = NewMonitor()
	})

	It("should register components", func() {
		m.RegisterComponent("Sample", &sampleStruct{})

		Expect(m.components).To(HaveLen(1))
		Expect(m.components[0].name).To(Equal("Sample"))
	})

	It("should track progress bars", func() {
		a := m.CreateProgressBar("Open", 4)
		b := m.CreateProgressBar("Close", 4)

		Expect(a.ID()).ToNot(Equal(b.ID()))
		Expect(m.progressBars).To(HaveLen(2))

		a.Start(4)
		a.Finish(2)
		a.Fail(1)
		Expect(a.State().InProgress).To(Equal(uint64(1)))
		Expect(a.State().Finished).To(Equal(uint64(2)))
		Expect(a.State().Failed).To(Equal(uint64(1)))
		Expect(a.Done()).To(BeFalse())

		a.Finish(1)
		Expect(a.State().InProgress).To(BeZero())
		Expect(a.Done()).To(BeTrue())

		m.CompleteProgressBar(a)
		Expect(m.progressBars).To(ConsistOf(b))
	})

	It("should walk int fields", func() {
		s := &sampleStruct{
			field1: 1,
		}

		elem, err := m.walkFields(s, "field1")

		Expect(err).To(BeNil())
		Expect(elem.Kind()).To(Equal(reflect.Int))
		Expect(elem.Type().Name()).To(Equal("int"))
		Expect(elem.Int()).To(Equal(int64(1)))
	})

	It("should walk string fields", func() {
		s := &sampleStruct{
			field2: "abc",
		}

		elem, err := m.walkFields(s, "field2")

		Expect(err).To(BeNil())
		Expect(elem.Kind()).To(Equal(reflect.String))
		Expect(elem.String()).To(Equal("abc"))
	})

	It("should walk struct", func() {
		s := &sampleStruct{
			field3: &sampleStruct{},
		}

		elem, err := m.walkFields(s, "field3")

		Expect(err).To(BeNil())
		Expect(elem.Kind()).To(Equal(reflect.Struct))
		Expect(elem.Type().Name()).To(Equal("sampleStruct"))
	})

	It("should walk recursively", func() {
		s := &sampleStruct{
			field3: &sampleStruct{
				field1: 1,
			},
		}

		elem, err := m.walkFields(s, "field3.field1")

		Expect(err).To(BeNil())
		Expect(elem.Int()).To(Equal(int64(1)))
	})

	It("should walk slice recursively", func() {
		s := &sampleStruct{
			field4: []sampleStruct{{
				field4: []sampleStruct{
					{field1: 1},
				},
			}, {}},
		}

		elem, err := m.walkFields(s, "field4.0.field4.0.field1")

		Expect(err).To(BeNil())
		Expect(elem.Int()).To(Equal(int64(1)))
	})

	It("should walk arrays", func() {
		s := &sampleStruct{
			field5: [2]int{3, 4},
		}

		elem, err := m.walkFields(s, "field5.1")

		Expect(err).To(BeNil())
		Expect(elem.Int()).To(Equal(int64(4)))
	})

	It("should reject unknown fields", func() {
		_, err := m.walkFields(&sampleStruct{}, "field9")

		Expect(err).To(BeAssignableToTypeOf(fieldFormatError{}))
	})

	It("should reject out of range indices", func() {
		s := &sampleStruct{
			field4: []sampleStruct{{}},
		}

		_, err := m.walkFields(s, "field4.1")
		Expect(err).To(HaveOccurred())

		_, err = m.walkFields(s, "field4.x")
		Expect(err).To(HaveOccurred())
	})

	It("should reject nil pointers", func() {
		_, err := m.walkFields(&sampleStruct{}, "field3.field1")

		Expect(err).To(HaveOccurred())
	})

	It("should reject fields of scalars", func() {
		_, err := m.walkFields(&sampleStruct{}, "field1.x")

		Expect(err).To(HaveOccurred())
	})
})
