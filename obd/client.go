package obd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"canlab/utils"
)

var ErrNoResponse = errors.New("no response")

// Client is a scan tool: it sends requests and waits a bounded time for the
// matching response. Unrelated traffic is skipped.
type Client struct {
	bus        utils.CANBus
	requestID  uint32
	responseID uint32
	timeout    time.Duration
}

func NewClient(bus utils.CANBus, requestID, responseID uint32, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Client{bus: bus, requestID: requestID, responseID: responseID, timeout: timeout}
}

// QueryPID reads one mode 0x01 value and returns it in physical units.
func (c *Client) QueryPID(ctx context.Context, pid byte) (float64, error) {
	resp, err := c.roundTrip(ctx, []byte{0x02, ModeCurrentData, pid, 0, 0, 0, 0, 0}, func(d []byte) bool {
		return len(d) >= 3 && d[1] == ModeCurrentData+responseOffset && d[2] == pid
	})
	if err != nil {
		return 0, fmt.Errorf("pid 0x%02X: %w", pid, err)
	}
	_, v, err := DecodePID(resp)
	return v, err
}

func (c *Client) ReadDTCs(ctx context.Context) ([]string, error) {
	resp, err := c.roundTrip(ctx, []byte{0x01, ModeReadDTCs, 0, 0, 0, 0, 0, 0}, func(d []byte) bool {
		return len(d) >= 2 && d[1] == ModeReadDTCs+responseOffset
	})
	if err != nil {
		return nil, fmt.Errorf("read DTCs: %w", err)
	}
	return ParseDTCs(resp), nil
}

func (c *Client) ClearDTCs(ctx context.Context) error {
	_, err := c.roundTrip(ctx, []byte{0x01, ModeClearDTCs, 0, 0, 0, 0, 0, 0}, func(d []byte) bool {
		return len(d) >= 2 && d[1] == ModeClearDTCs+responseOffset
	})
	if err != nil {
		return fmt.Errorf("clear DTCs: %w", err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req []byte, match func([]byte) bool) ([]byte, error) {
	f, err := utils.NewFrame(c.requestID, req)
	if err != nil {
		return nil, err
	}
	if err := c.bus.WriteFrame(ctx, f); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil, ErrNoResponse
		}
		resp, err := utils.RecvTimeout(ctx, c.bus, left)
		if errors.Is(err, utils.ErrTimeout) {
			return nil, ErrNoResponse
		}
		if err != nil {
			return nil, err
		}
		if resp.ID != c.responseID {
			continue
		}
		if d := utils.Payload(resp); match(d) {
			return d, nil
		}
	}
}
