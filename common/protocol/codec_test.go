package protocol_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scusemua/distributed-evaluation/common/protocol"
)

func simpleFrame(id string) *protocol.JobFrame {
	return &protocol.JobFrame{
		Kind:           protocol.SimpleJob,
		ID:             id,
		Subpopulations: []int32{0, 1},
		Blobs:          [][]byte{[]byte("first"), []byte("second")},
	}
}

var _ = Describe("Codec Tests", func() {
	for _, compress := range []bool{false, true} {
		compress := compress

		Context("with compression set to "+map[bool]string{false: "off", true: "on"}[compress], func() {
			It("Will round-trip simple and grouped job frames", func() {
				var buf bytes.Buffer
				enc := protocol.NewEncoder(&buf, compress)

				grouped := &protocol.JobFrame{
					Kind:               protocol.GroupedJob,
					ID:                 "grouped",
					Subpopulations:     []int32{0, 1, 1},
					Blobs:              [][]byte{[]byte("a"), []byte("b"), []byte("c")},
					CountVictoriesOnly: true,
					UpdateFitness:      []bool{true, false, true},
				}

				Expect(enc.WriteJob(simpleFrame("simple"))).To(Succeed())
				Expect(enc.WriteJob(grouped)).To(Succeed())

				dec := protocol.NewDecoder(&buf, compress)

				first, err := dec.ReadJob()
				Expect(err).To(BeNil())
				Expect(first).To(Equal(simpleFrame("simple")))

				second, err := dec.ReadJob()
				Expect(err).To(BeNil())
				Expect(second).To(Equal(grouped))

				_, err = dec.ReadJob()
				Expect(err).To(Equal(io.EOF))
			})

			It("Will round-trip result frames with and without random state", func() {
				var buf bytes.Buffer
				enc := protocol.NewEncoder(&buf, compress)

				withState := &protocol.ResultFrame{
					JobID:       "job-1",
					Blobs:       [][]byte{[]byte("x"), []byte("y")},
					RandomState: []byte{1, 2, 3, 4},
				}
				withoutState := &protocol.ResultFrame{
					JobID: "job-2",
					Blobs: [][]byte{[]byte("z")},
				}

				Expect(enc.WriteResult(withState)).To(Succeed())
				Expect(enc.WriteResult(withoutState)).To(Succeed())

				dec := protocol.NewDecoder(&buf, compress)

				res, err := dec.ReadResult()
				Expect(err).To(BeNil())
				Expect(res).To(Equal(withState))

				res, err = dec.ReadResult()
				Expect(err).To(BeNil())
				Expect(res).To(Equal(withoutState))
				Expect(res.RandomState).To(BeNil())

				_, err = dec.ReadResult()
				Expect(err).To(Equal(io.EOF))
			})

			It("Will deliver each frame as soon as it is flushed on a live stream", func() {
				master, worker := net.Pipe()
				defer master.Close()
				defer worker.Close()

				enc := protocol.NewEncoder(master, compress)
				dec := protocol.NewDecoder(worker, compress)

				received := make(chan *protocol.JobFrame, 1)
				go func() {
					defer GinkgoRecover()
					frame, err := dec.ReadJob()
					Expect(err).To(BeNil())
					received <- frame
				}()

				Expect(enc.WriteJob(simpleFrame("live"))).To(Succeed())
				Eventually(received, time.Second*2).Should(Receive(Equal(simpleFrame("live"))))
			})
		})
	}

	It("Will report a truncated frame as an unexpected EOF", func() {
		var buf bytes.Buffer
		Expect(protocol.NewEncoder(&buf, false).WriteJob(simpleFrame("truncated"))).To(Succeed())

		truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-3])
		_, err := protocol.NewDecoder(truncated, false).ReadJob()
		Expect(err).To(MatchError(io.ErrUnexpectedEOF))
	})

	It("Will reject frames of an unknown kind", func() {
		_, err := protocol.NewDecoder(bytes.NewReader([]byte{9, 0, 0}), false).ReadJob()
		Expect(err).To(MatchError(protocol.ErrUnknownKind))

		err = protocol.NewEncoder(io.Discard, false).WriteJob(&protocol.JobFrame{Kind: 7})
		Expect(err).To(MatchError(protocol.ErrUnknownKind))
	})

	It("Will reject frames that declare too many individuals", func() {
		msg := []byte{byte(protocol.SimpleJob), 0, 1, 'j'}
		msg = binary.BigEndian.AppendUint32(msg, protocol.MaxIndividuals+1)

		_, err := protocol.NewDecoder(bytes.NewReader(msg), false).ReadJob()
		Expect(err).To(MatchError(protocol.ErrFrameTooLarge))
	})

	It("Will refuse to encode a grouped job with missing update flags", func() {
		frame := simpleFrame("bad")
		frame.Kind = protocol.GroupedJob

		Expect(protocol.NewEncoder(io.Discard, false).WriteJob(frame)).ToNot(Succeed())
	})
})
