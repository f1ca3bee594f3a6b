package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/packet"
	"commandstation-go/services/station/internal/queue"
	"commandstation-go/services/station/internal/wave"
)

var (
	encodeChecksum bool
	encodePreamble uint8
	encodeHalves   bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode BYTE...",
	Short: "Print the waveform of one packet",
	Long: `Encode one packet, given as hex bytes, and print its bits grouped as
preamble, start, data bytes with separators and end bit.

With --checksum the XOR checksum is appended; otherwise the last byte must
already be the checksum.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().BoolVarP(&encodeChecksum, "checksum", "c", false, "Append the checksum byte")
	encodeCmd.Flags().Uint8Var(&encodePreamble, "preamble", 16, "Preamble length in one bits")
	encodeCmd.Flags().BoolVar(&encodeHalves, "halves", false, "Also list every half period")
}

func runEncode(cmd *cobra.Command, args []string) error {
	p, err := parsePacket(args, encodeChecksum)
	if err != nil {
		return err
	}
	halves, err := encode(p, wave.DefaultTiming, encodePreamble)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "packet:   % X\n", p.Bytes())
	fmt.Fprintf(out, "bits:     %s\n", render(halves, wave.DefaultTiming, encodePreamble))
	fmt.Fprintf(out, "halves:   %d\n", len(halves))
	fmt.Fprintf(out, "duration: %v\n", total(halves))
	if encodeHalves {
		for i, h := range halves {
			level := "L"
			if h.high {
				level = "H"
			}
			fmt.Fprintf(out, "%4d %s %v\n", i, level, h.d)
		}
	}
	return nil
}

func parsePacket(args []string, checksum bool) (packet.Packet, error) {
	raw := make([]byte, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(a), "0x"), 16, 8)
		if err != nil {
			return packet.Packet{}, &errcode.E{C: errcode.InvalidParams, Op: "encode", Msg: "bad byte " + a, Err: err}
		}
		raw = append(raw, byte(v))
	}
	if checksum {
		return packet.WithChecksum(raw...)
	}
	return packet.New(raw...)
}

type half struct {
	high bool
	d    time.Duration
}

// recorder stands in for the track output and timer: the level set before
// each Arm is what the rails carry for the armed duration.
type recorder struct {
	level  bool
	halves []half
}

func (r *recorder) SetSignal(high bool)  { r.level = high }
func (r *recorder) Arm(d time.Duration) { r.halves = append(r.halves, half{r.level, d}) }

// encode runs p through the waveform encoder and returns one packet's worth
// of half periods, preamble included.
func encode(p packet.Packet, t wave.Timing, preamble uint8) ([]half, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if preamble < wave.MinPreambleMain {
		return nil, errcode.Invalid("encode", "preamble below minimum")
	}
	q := queue.New(0)
	if err := q.Enqueue(p, 1); err != nil {
		return nil, err
	}
	r := &recorder{}
	e := wave.NewEncoder(r, r, q, t, preamble)
	n := 2 * (int(preamble) + 9*p.Len() + 1)
	for i := 0; i < n; i++ {
		e.Step()
	}
	return r.halves, nil
}

// render prints one character per bit, space separated between fields.
func render(halves []half, t wave.Timing, preamble uint8) string {
	var b strings.Builder
	for i := 0; i+1 < len(halves); i += 2 {
		bit := i / 2
		if bit == int(preamble) || (bit > int(preamble) && (bit-int(preamble))%9 == 0) {
			b.WriteByte(' ')
		}
		if bit > int(preamble) && (bit-int(preamble))%9 == 1 {
			b.WriteByte(' ')
		}
		if halves[i].d == t.One {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func total(halves []half) time.Duration {
	var d time.Duration
	for _, h := range halves {
		d += h.d
	}
	return d
}
