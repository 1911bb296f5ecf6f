// Package mock provides test doubles for the recognizer package interfaces.
//
// Use Provider to verify which grammars instances were started with. Use
// Instance to feed controlled partial and terminal results and inspect the
// audio chunks that were delivered.
//
// Example:
//
//	inst := mock.NewInstance()
//	p := &mock.Provider{Instances: []*mock.Instance{inst}}
//	inst.ResultsCh <- recognizer.Result{Text: "apple", Final: true}
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/lexidrill/lexidrill/pkg/recognizer"
)

// StartCall records a single invocation of Provider.Start.
type StartCall struct {
	// Grammar is the grammar passed to Start.
	Grammar recognizer.Grammar
	// Cfg is the stream config passed to Start.
	Cfg recognizer.StreamConfig
}

// Provider is a mock implementation of recognizer.Provider. Each Start call
// hands out the next element of Instances; when Instances is exhausted a new
// default Instance is returned.
type Provider struct {
	mu sync.Mutex

	// Instances are handed out in order by successive Start calls.
	Instances []*Instance

	// StartErr, if non-nil, is returned as the error from every Start call.
	StartErr error

	// StartCalls records every call to Start.
	StartCalls []StartCall

	next int
}

// Start records the call and returns the next configured instance.
func (p *Provider) Start(_ context.Context, grammar recognizer.Grammar, cfg recognizer.StreamConfig) (recognizer.Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, StartCall{Grammar: grammar, Cfg: cfg})
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	if p.next < len(p.Instances) {
		inst := p.Instances[p.next]
		p.next++
		return inst, nil
	}
	return NewInstance(), nil
}

// Ensure Provider implements recognizer.Provider at compile time.
var _ recognizer.Provider = (*Provider)(nil)

// Instance is a mock implementation of recognizer.Instance. Tests own
// PartialsCh and ResultsCh: send the results the consumer should receive,
// then close them (or call Close, which closes both exactly once).
type Instance struct {
	mu sync.Mutex

	// PartialsCh is the channel returned by Partials().
	PartialsCh chan recognizer.Result

	// ResultsCh is the channel returned by Results().
	ResultsCh chan recognizer.Result

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by the first Close call.
	CloseErr error

	// AudioChunks records a copy of every chunk passed to SendAudio.
	AudioChunks [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closeOnce sync.Once
	closed    bool
}

// NewInstance returns an Instance with buffered result channels ready for use.
func NewInstance() *Instance {
	return &Instance{
		PartialsCh: make(chan recognizer.Result, 16),
		ResultsCh:  make(chan recognizer.Result, 16),
	}
}

// SendAudio records the chunk and returns SendAudioErr.
func (i *Instance) SendAudio(chunk []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return errors.New("mock: instance is closed")
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	i.AudioChunks = append(i.AudioChunks, cp)
	return i.SendAudioErr
}

// Partials returns PartialsCh.
func (i *Instance) Partials() <-chan recognizer.Result { return i.PartialsCh }

// Results returns ResultsCh.
func (i *Instance) Results() <-chan recognizer.Result { return i.ResultsCh }

// Close marks the instance closed and closes both channels exactly once.
func (i *Instance) Close() error {
	var err error
	i.closeOnce.Do(func() {
		i.mu.Lock()
		i.closed = true
		err = i.CloseErr
		i.mu.Unlock()
		close(i.PartialsCh)
		close(i.ResultsCh)
	})
	i.mu.Lock()
	i.CloseCallCount++
	i.mu.Unlock()
	return err
}

// AudioChunkCount returns the number of SendAudio calls. Thread-safe.
func (i *Instance) AudioChunkCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.AudioChunks)
}

// CloseCount returns the number of Close calls. Thread-safe.
func (i *Instance) CloseCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.CloseCallCount
}

// Ensure Instance implements recognizer.Instance at compile time.
var _ recognizer.Instance = (*Instance)(nil)
