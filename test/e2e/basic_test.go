package e2e

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/operator-framework/wcsp/cmd/root"
)

// queens writes the n-queens problem: one variable per column holding the
// row of its queen, with a forbidden cost on attacking pairs.
func queens(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "queens %d %d %d 1\n", n, n, n*(n-1)/2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprint(&b, n)
	}
	b.WriteByte('\n')
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var tuples []string
			for a := 0; a < n; a++ {
				for c := 0; c < n; c++ {
					if a == c || a-c == j-i || c-a == j-i {
						tuples = append(tuples, fmt.Sprintf("%d %d 1", a, c))
					}
				}
			}
			fmt.Fprintf(&b, "2 %d %d 0 %d\n%s\n", i, j, len(tuples), strings.Join(tuples, "\n"))
		}
	}
	return b.String()
}

func Logf(f string, v ...interface{}) {
	if !strings.HasSuffix(f, "\n") {
		f += "\n"
	}
	GinkgoWriter.Printf(f, v...)
}

func run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := root.NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(GinkgoWriter)
	err := cmd.Execute()
	Logf("wcsp %s:\n%s", strings.Join(args, " "), out.String())
	return out.String(), err
}

type report struct {
	Cost    *int64 `yaml:"cost"`
	Optimal bool   `yaml:"optimal"`
	Values  []int  `yaml:"values"`
	Error   string `yaml:"error"`
}

var _ = Describe("wcsp solve", func() {
	var dir, problem string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		problem = filepath.Join(dir, "queens.wcsp")
		Expect(os.WriteFile(problem, []byte(queens(4)), 0o600)).To(Succeed())
	})

	It("places four queens", func() {
		out, err := run("solve", problem, "-o", "yaml")
		Expect(err).ToNot(HaveOccurred())

		var r report
		Expect(yaml.Unmarshal([]byte(out), &r)).To(Succeed())
		Expect(r.Error).To(BeEmpty())
		Expect(r.Cost).ToNot(BeNil())
		Expect(*r.Cost).To(BeZero())
		Expect(r.Values).To(SatisfyAny(Equal([]int{1, 3, 0, 2}), Equal([]int{2, 0, 3, 1})))
	})

	It("reads settings from a configuration file", func() {
		config := filepath.Join(dir, "wcsp.toml")
		Expect(os.WriteFile(config, []byte(`propagation = "dac"
hard_check = true
output = "yaml"
metrics_file = "`+filepath.Join(dir, "wcsp.prom")+`"
`), 0o600)).To(Succeed())

		out, err := run("--config", config, "solve", problem)
		Expect(err).ToNot(HaveOccurred())
		var r report
		Expect(yaml.Unmarshal([]byte(out), &r)).To(Succeed())
		Expect(r.Optimal).To(BeTrue())
		Expect(filepath.Join(dir, "wcsp.prom")).To(BeAnExistingFile())
	})

	It("rejects an invalid configuration", func() {
		config := filepath.Join(dir, "wcsp.toml")
		Expect(os.WriteFile(config, []byte(`output = "json"`), 0o600)).To(Succeed())
		_, err := run("--config", config, "solve", problem)
		Expect(err).To(MatchError(ContainSubstring("invalid config")))
	})

	It("reports a missing file", func() {
		_, err := run("solve", filepath.Join(dir, "missing.wcsp"))
		Expect(err).To(MatchError(ContainSubstring("not found")))
	})

	It("reports an infeasible network", func() {
		three := filepath.Join(dir, "three.wcsp")
		Expect(os.WriteFile(three, []byte(queens(3)), 0o600)).To(Succeed())
		out, err := run("solve", three, "--propagation", "nc")
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HavePrefix("no solution found"))
	})
})

var _ = Describe("wcsp sudoku", func() {
	It("prints a board", func() {
		out, err := run("sudoku", "--seed", "4")
		Expect(err).ToNot(HaveOccurred())
		Expect(strings.Split(strings.TrimSpace(out), "\n")).To(HaveLen(9))
	})
})
