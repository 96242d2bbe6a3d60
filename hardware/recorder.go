package hardware

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/gammazero/deque"
)

// Op is one recorded bus operation.
type Op struct {
	At   time.Time
	Kind string
	Tx   []byte
	Rx   []byte
	Err  error
}

func (o Op) String() string {
	status := "ok"
	if o.Err != nil {
		status = o.Err.Error()
	}
	s := fmt.Sprintf("%s %-8s tx=%s", o.At.Format("15:04:05.000000"), o.Kind, hex.EncodeToString(o.Tx))
	if o.Rx != nil {
		s += " rx=" + hex.EncodeToString(o.Rx)
	}
	return s + " " + status
}

// Recorder wraps a Bus and keeps the most recent operations.
type Recorder struct {
	Bus
	size    int
	history deque.Deque[Op]
	now     func() time.Time
}

// NewRecorder keeps up to size operations of bus. A size of zero or
// less records nothing.
func NewRecorder(bus Bus, size int) *Recorder {
	r := &Recorder{Bus: bus, size: size, now: time.Now}
	if size > 0 {
		r.history.Grow(size)
	}
	return r
}

func (r *Recorder) record(kind string, tx, rx []byte, err error) {
	if r.size <= 0 {
		return
	}
	if r.history.Len() == r.size {
		r.history.PopFront()
	}
	r.history.PushBack(Op{
		At:   r.now(),
		Kind: kind,
		Tx:   append([]byte(nil), tx...),
		Rx:   cloneOrNil(rx),
		Err:  err,
	})
}

func cloneOrNil(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func (r *Recorder) Transfer(tx, rx []byte) error {
	err := r.Bus.Transfer(tx, rx)
	r.record("transfer", tx, rx, err)
	return err
}

func (r *Recorder) WriteData(buf []byte) error {
	err := r.Bus.WriteData(buf)
	r.record("write", buf, nil, err)
	return err
}

func (r *Recorder) ReadData(buf []byte) error {
	err := r.Bus.ReadData(buf)
	r.record("read", nil, buf, err)
	return err
}

func (r *Recorder) SendData(buf []byte) error {
	err := r.Bus.SendData(buf)
	r.record("send", buf, nil, err)
	return err
}

// Ops returns the recorded operations, oldest first.
func (r *Recorder) Ops() []Op {
	ops := make([]Op, r.history.Len())
	for i := range ops {
		ops[i] = r.history.At(i)
	}
	return ops
}

// Dump writes one line per recorded operation to w.
func (r *Recorder) Dump(w io.Writer) error {
	for _, op := range r.Ops() {
		if _, err := fmt.Fprintln(w, op); err != nil {
			return err
		}
	}
	return nil
}
