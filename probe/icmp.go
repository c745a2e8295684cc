package probe

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/carvectf/canary/config"
)

// IcmpEvaluator issues one ICMP echo request and reports success iff a
// reply of the configured code returns inside the budget (spec.md §4.1).
// On platforms that gate unprivileged ICMP sockets, it falls back to the
// platform ping binary.
type IcmpEvaluator struct {
	Spec config.IcmpSpec
}

func (e *IcmpEvaluator) Evaluate(ctx context.Context, hostname string, _ Credentials) Outcome {
	return withTimeout(ctx, e.Spec.Timeout, func(ctx context.Context) Outcome {
		if rtt, err := e.echo(ctx, hostname); err == nil {
			return Outcome{Success: true, Message: fmt.Sprintf("rtt=%dms", rtt.Milliseconds())}
		}
		return e.pingFallback(ctx, hostname)
	})
}

func (e *IcmpEvaluator) echo(ctx context.Context, hostname string) (time.Duration, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	dst, err := net.ResolveIPAddr("ip4", hostname)
	if err != nil {
		return 0, err
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(time.Now().UnixNano() & 0xffff),
			Seq:  1,
			Data: []byte("canary"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, &net.UDPAddr{IP: dst.IP}); err != nil {
		return 0, err
	}

	rb := make([]byte, 1500)
	n, _, err := conn.ReadFrom(rb)
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)

	reply, err := icmp.ParseMessage(1, rb[:n])
	if err != nil {
		return 0, err
	}
	if uint8(reply.Code) != e.Spec.Code {
		return 0, fmt.Errorf("unexpected icmp code %d want %d", reply.Code, e.Spec.Code)
	}
	return rtt, nil
}

func (e *IcmpEvaluator) pingFallback(ctx context.Context, hostname string) Outcome {
	args := pingArgs(hostname)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	start := time.Now()
	err := cmd.Run()
	rtt := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Success: false, Message: "timeout"}
		}
		return Outcome{Success: false, Message: "no reply"}
	}
	return Outcome{Success: true, Message: fmt.Sprintf("rtt=%dms", rtt.Milliseconds())}
}

func pingArgs(hostname string) []string {
	if runtime.GOOS == "windows" {
		return []string{"ping", "-n", "1", hostname}
	}
	return []string{"ping", "-c", "1", hostname}
}
