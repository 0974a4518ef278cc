//go:build darwin

package serialport

import "golang.org/x/sys/unix"

const (
	ioctlGetTermios = unix.TIOCGETA
	ioctlSetTermios = unix.TIOCSETA
)

func cfmakeraw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
}

// On the BSD-derived Darwin termios, speed is a raw baud value assigned
// directly to Ispeed/Ospeed rather than looked up through B-constants.
func termiosSpeed(baud uint32) (uint32, bool) {
	switch baud {
	case 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600:
		return baud, true
	default:
		return 0, false
	}
}

func setTermiosSpeed(t *unix.Termios, speed uint32) {
	t.Ispeed = uint64(speed)
	t.Ospeed = uint64(speed)
}
