package utils_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scusemua/distributed-evaluation/common/utils"
)

var _ = Describe("Environment Tests", func() {
	AfterEach(func() {
		_ = os.Unsetenv("DISTRIBUTED_EVALUATION_TEST")
	})

	It("Will fall back to the default for unset variables", func() {
		Expect(utils.GetEnv("DISTRIBUTED_EVALUATION_TEST", "fallback")).To(Equal("fallback"))
	})

	It("Will return the value of set variables", func() {
		Expect(os.Setenv("DISTRIBUTED_EVALUATION_TEST", "worker-3")).To(Succeed())
		Expect(utils.GetEnv("DISTRIBUTED_EVALUATION_TEST", "fallback")).To(Equal("worker-3"))
	})

	It("Will always produce a hostname", func() {
		Expect(utils.Hostname("fallback")).ToNot(BeEmpty())
	})
})
