package facade

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/digitalservo/cands-go/pkg/cyphal"
	"github.com/digitalservo/cands-go/pkg/digitalservo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedInterfaceSerializesConcurrentSetValue(t *testing.T) {
	iface, sim := newTestInterface(t)
	shared := NewShared(iface)

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				xid, _ := cyphal.EncodeResponse(digitalservo.PortSetValueStatus, 5, iface.NodeID, 4)
				injectResponse(t, sim, xid, []byte{0})
			}
		}
	}()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for n := 0; n < 10; n++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = shared.SendDigitalservoSetValue(context.Background(), 5, digitalservo.Dict{
				Key:    1,
				Values: []digitalservo.PrimitiveData{digitalservo.U8(uint8(i))},
			})
		}(n)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestSharedInterfaceSendMessagePassesThrough(t *testing.T) {
	iface, sim := newTestInterface(t)
	shared := NewShared(iface)

	require.NoError(t, shared.SendMessage(context.Background(), 0x10, 4, []byte{1}))
	assert.Len(t, sim.Sent(), 1)
}
