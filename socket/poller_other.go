//go:build !(linux || darwin)

package socket

func newPollPoller() (Poller, error) {
	return nil, ErrPollUnsupported
}
