package hk_test

import (
	"testing"
	"time"

	"github.com/gofilt/gofilt/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestHousekeeper(t *testing.T) {
	hk.TestInit()
	go hk.DefaultHK.Run()
	hk.WaitStarted()
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}

var _ = Describe("Housekeeper", func() {
	It("fires a registered callback periodically", func() {
		calls := make(chan struct{}, 8)
		hk.DefaultHK.Reg("periodic", func() time.Duration {
			calls <- struct{}{}
			return 5 * time.Millisecond
		}, time.Millisecond)

		Eventually(calls, time.Second).Should(Receive())
		Eventually(calls, time.Second).Should(Receive())
		hk.DefaultHK.Unreg("periodic")
	})

	It("stops firing once unregistered", func() {
		calls := make(chan struct{}, 8)
		hk.DefaultHK.Reg("onceish", func() time.Duration {
			calls <- struct{}{}
			return 5 * time.Millisecond
		}, time.Millisecond)
		Eventually(calls, time.Second).Should(Receive())
		hk.DefaultHK.Unreg("onceish")

		for len(calls) > 0 {
			<-calls
		}
		Consistently(calls, 50*time.Millisecond).ShouldNot(Receive())
	})

	It("replaces a registration under the same name", func() {
		firstCalls, secondCalls := 0, 0
		hk.DefaultHK.Reg("dup", func() time.Duration { firstCalls++; return time.Millisecond }, time.Millisecond)
		hk.DefaultHK.Reg("dup", func() time.Duration { secondCalls++; return time.Millisecond }, time.Millisecond)

		Eventually(func() int { return secondCalls }, time.Second).Should(BeNumerically(">", 0))
		Expect(firstCalls).To(Equal(0))
		hk.DefaultHK.Unreg("dup")
	})
})
