//go:build linux || darwin

package serialport

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// unixPort implements Port directly against termios/ioctl, modeled on the
// POSIX backend of the C reference implementation this package is ported
// from (open_serial_posix, set_interface_attribs, serial_read_posix,
// serial_write_posix, bytes_available_posix).
type unixPort struct {
	mu sync.Mutex
	fd int

	// cancelR/cancelW are a self-pipe used to interrupt a blocked poll()
	// from Cancel, since POSIX has no portable way to cancel a single fd's
	// blocking wait from another thread.
	cancelR, cancelW int
	closed           bool
}

func open(cfg Config) (Port, error) {
	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	if err := configureTermios(fd, cfg); err != nil {
		unix.Close(fd)
		return nil, err
	}
	assertRTSDTR(fd)

	pipe := make([]int, 2)
	if err := unix.Pipe2(pipe, unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &unixPort{fd: fd, cancelR: pipe[0], cancelW: pipe[1]}, nil
}

func configureTermios(fd int, cfg Config) error {
	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return err
	}
	cfmakeraw(t)

	speed, ok := termiosSpeed(cfg.Baud)
	if !ok {
		speed = unix.B115200
	}
	setTermiosSpeed(t, speed)

	t.Cflag |= unix.CLOCAL | unix.CREAD
	t.Cflag &^= unix.CSIZE
	switch cfg.DataBits {
	case 5:
		t.Cflag |= unix.CS5
	case 6:
		t.Cflag |= unix.CS6
	case 7:
		t.Cflag |= unix.CS7
	default:
		t.Cflag |= unix.CS8
	}
	t.Cflag &^= unix.PARENB | unix.CRTSCTS
	if cfg.Parity != ParityNone {
		t.Cflag |= unix.PARENB
		if cfg.Parity == ParityOdd {
			t.Cflag |= unix.PARODD
		}
	}
	if cfg.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	} else {
		t.Cflag &^= unix.CSTOPB
	}

	// Non-blocking read by default; Read performs its own bounded poll.
	t.Cc[unix.VTIME] = 0
	t.Cc[unix.VMIN] = 0

	return unix.IoctlSetTermios(fd, ioctlSetTermios, t)
}

// assertRTSDTR asserts RTS and DTR, pulsing DTR low for 10ms first the way
// the reference implementation's Windows path does (reference doesn't
// pulse on POSIX, but we keep the host-visible behavior consistent across
// backends since some USB-CDC targets use the DTR edge as a reset signal).
func assertRTSDTR(fd int) {
	var bits int
	unix.IoctlGetInt(fd, unix.TIOCMGET)
	bits = unix.TIOCM_DTR
	unix.IoctlSetPointerInt(fd, unix.TIOCMBIC, bits)
	time.Sleep(10 * time.Millisecond)
	bits = unix.TIOCM_RTS | unix.TIOCM_DTR
	unix.IoctlSetPointerInt(fd, unix.TIOCMBIS, bits)
}

func (p *unixPort) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	p.mu.Lock()
	fd := p.fd
	cancelR := p.cancelR
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	total := 0
	for total < len(buf) {
		n, err := unix.Read(fd, buf[total:])
		if n > 0 {
			total += n
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || n == 0 {
			break
		}
		if isFatalIOErr(err) {
			return total, ErrPortLost
		}
		return total, err
	}
	if total > 0 {
		return total, nil
	}
	// Nothing buffered yet; give any in-flight byte up to 3ms to land,
	// per the spec's bounded-wait read semantics.
	ev := p.pollReadable(3*time.Millisecond, cancelR)
	if ev != EventData {
		return 0, nil
	}
	n, err := unix.Read(fd, buf)
	if n < 0 {
		n = 0
	}
	if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
		if isFatalIOErr(err) {
			return n, ErrPortLost
		}
		return n, err
	}
	return n, nil
}

func (p *unixPort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	fd := p.fd
	cancelR := p.cancelR
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	deadline := time.Now().Add(2 * time.Second)
	total := 0
	for total < len(buf) {
		n, err := unix.Write(fd, buf[total:])
		if n > 0 {
			total += n
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return total, nil
			}
			if p.pollWritable(remaining, cancelR) != EventData {
				return total, nil
			}
			continue
		}
		if isFatalIOErr(err) {
			return total, ErrPortLost
		}
		return total, err
	}
	return total, nil
}

func (p *unixPort) WaitReadable(timeout time.Duration) RXEvent {
	p.mu.Lock()
	fd := p.fd
	cancelR := p.cancelR
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return EventError
	}
	return pollFD(fd, unix.POLLIN, timeout, cancelR)
}

func (p *unixPort) pollReadable(timeout time.Duration, cancelR int) RXEvent {
	p.mu.Lock()
	fd := p.fd
	p.mu.Unlock()
	return pollFD(fd, unix.POLLIN, timeout, cancelR)
}

func (p *unixPort) pollWritable(timeout time.Duration, cancelR int) RXEvent {
	p.mu.Lock()
	fd := p.fd
	p.mu.Unlock()
	return pollFD(fd, unix.POLLOUT, timeout, cancelR)
}

func pollFD(fd int, events int16, timeout time.Duration, cancelR int) RXEvent {
	fds := []unix.PollFd{
		{Fd: int32(fd), Events: events},
		{Fd: int32(cancelR), Events: unix.POLLIN},
	}
	ms := int(timeout / time.Millisecond)
	if ms <= 0 && timeout > 0 {
		ms = 1
	}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return EventTimeout
		}
		return EventError
	}
	if n == 0 {
		return EventTimeout
	}
	if fds[1].Revents&unix.POLLIN != 0 {
		// Drain the cancel pipe so it doesn't keep firing.
		var b [16]byte
		unix.Read(cancelR, b[:])
		return EventTimeout
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return EventError
	}
	if fds[0].Revents&events != 0 {
		return EventData
	}
	return EventTimeout
}

func isFatalIOErr(err error) bool {
	return err == unix.EBADF || err == unix.EIO
}

func (p *unixPort) Cancel() {
	p.mu.Lock()
	w := p.cancelW
	p.mu.Unlock()
	var b [1]byte
	unix.Write(w, b[:])
}

func (p *unixPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	unix.IoctlSetPointerInt(p.fd, unix.TIOCMBIC, unix.TIOCM_DTR|unix.TIOCM_RTS)
	unix.Close(p.cancelR)
	unix.Close(p.cancelW)
	return unix.Close(p.fd)
}
