package sproxy

import (
	"golang.org/x/sys/unix"
	"os"
	"unsafe"
)

// Speed flags of serial_struct.flags (linux/tty_flags.h).
const (
	asyncSpdMask = 0x1030
	asyncSpdCust = 0x0030
)

// serialInfo mirrors struct serial_struct from linux/serial.h.
type serialInfo struct {
	Type          int32
	Line          int32
	Port          uint32
	Irq           int32
	Flags         int32
	XmitFifoSize  int32
	CustomDivisor int32
	BaudBase      int32
	CloseDelay    uint16
	IoType        uint8
	ReservedChar  [1]uint8
	Hub6          int32
	ClosingWait   uint16
	ClosingWait2  uint16
	IomemBase     uintptr
	IomemRegShift uint16
	PortHigh      uint32
	IomapBase     uintptr
}

var standardBaudRates = map[int]uint32{
	50:      unix.B50,
	75:      unix.B75,
	110:     unix.B110,
	134:     unix.B134,
	150:     unix.B150,
	200:     unix.B200,
	300:     unix.B300,
	600:     unix.B600,
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}

// StandardBaudRate reports the termios speed constant for baud, if the
// platform has one.
func StandardBaudRate(baud int) (uint32, bool) {
	speed, ok := standardBaudRates[baud]
	return speed, ok
}

// lineDiscipline is the set of terminal control calls link establishment
// needs.
type lineDiscipline interface {
	GetTermios(fd int) (*unix.Termios, error)
	SetTermios(fd int, termios *unix.Termios) error
	GetSerial(fd int) (*serialInfo, error)
	SetSerial(fd int, info *serialInfo) error
}

type unixLine struct{}

func (unixLine) GetTermios(fd int) (*unix.Termios, error) {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, os.NewSyscallError("tcgetattr", err)
	}
	return termios, nil
}

func (unixLine) SetTermios(fd int, termios *unix.Termios) error {
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return os.NewSyscallError("tcsetattr", err)
	}
	return nil
}

func (unixLine) GetSerial(fd int) (*serialInfo, error) {
	info := &serialInfo{}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TIOCGSERIAL), uintptr(unsafe.Pointer(info)))
	if errno != 0 {
		return nil, os.NewSyscallError("ioctl TIOCGSERIAL", errno)
	}
	return info, nil
}

func (unixLine) SetSerial(fd int, info *serialInfo) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TIOCSSERIAL), uintptr(unsafe.Pointer(info)))
	if errno != 0 {
		return os.NewSyscallError("ioctl TIOCSSERIAL", errno)
	}
	return nil
}

// configureSpeed applies baud either as a standard termios speed or, when the
// platform has no constant for it, as a custom divisor of the UART base
// clock. It reports whether the custom path was taken.
func configureSpeed(line lineDiscipline, fd int, termios *unix.Termios, baud int) (bool, error) {
	if !ValidBaudRate(baud) {
		return false, ErrInvalidBaudRate
	}
	if speed, ok := StandardBaudRate(baud); ok {
		setSpeed(termios, speed)
		return false, nil
	}
	info, err := line.GetSerial(fd)
	if err != nil {
		return true, err
	}
	if info.BaudBase <= 0 {
		return true, ErrInvalidBaudRate
	}
	divisor := info.BaudBase / int32(baud)
	if divisor == 0 {
		return true, ErrInvalidBaudRate
	}
	info.CustomDivisor = divisor
	info.Flags &^= asyncSpdMask
	info.Flags |= asyncSpdCust
	return true, line.SetSerial(fd, info)
}

func setSpeed(termios *unix.Termios, speed uint32) {
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= speed
	termios.Ispeed = speed
	termios.Ospeed = speed
}

// makeRaw is the cfmakeraw equivalent: no canonical processing, no echo, no
// signal characters, 8 bit bytes. A read returns as soon as one byte is
// available.
func makeRaw(termios *unix.Termios) {
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0
}
