package client

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/Zereker/chatroom/wire"
)

// Step is one request of a scripted session and the reply that ends it.
type Step struct {
	Name  string
	Send  func(ctx context.Context, s *Session) error
	Reply []wire.Type
}

// Script returns the steps of the demonstration client: log in (creating
// the account first when create is set), join graphics and network, chat
// in network and leave graphics. An empty say picks a random sentence.
func Script(user, password string, create bool, say string) []Step {
	if say == "" {
		say = Sentence()
	}

	var steps []Step
	if create {
		steps = append(steps, Step{
			Name:  "create account " + user,
			Send:  func(ctx context.Context, s *Session) error { return s.CreateAccount(ctx, user, password) },
			Reply: []wire.Type{wire.TypeCreateAccountSuccessAck, wire.TypeCreateAccountFailureAck},
		})
	}
	return append(steps,
		Step{
			Name:  "authenticate " + user,
			Send:  func(ctx context.Context, s *Session) error { return s.Authenticate(ctx, user, password) },
			Reply: []wire.Type{wire.TypeAuthenticateAccountSuccessAck, wire.TypeAuthenticateAccountFailureAck},
		},
		joinStep("graphics"),
		joinStep("network"),
		Step{
			Name:  "chat in #network",
			Send:  func(ctx context.Context, s *Session) error { return s.Chat(ctx, "network", say) },
			Reply: []wire.Type{wire.TypeChatInRoomAck},
		},
		Step{
			Name:  "leave #graphics",
			Send:  func(ctx context.Context, s *Session) error { return s.LeaveRoom(ctx, "graphics") },
			Reply: []wire.Type{wire.TypeLeaveRoomAck},
		},
	)
}

func joinStep(room string) Step {
	return Step{
		Name:  "join #" + room,
		Send:  func(ctx context.Context, s *Session) error { return s.JoinRoom(ctx, room) },
		Reply: []wire.Type{wire.TypeJoinRoomAck},
	}
}

// Play runs steps in order. Each step waits for its reply; every message
// received meanwhile is written to out.
func (s *Session) Play(ctx context.Context, steps []Step, out io.Writer) error {
	for _, step := range steps {
		fmt.Fprintf(out, "> %s\n", step.Name)
		if err := step.Send(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
		if err := s.await(ctx, step.Reply, out); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
	}
	return nil
}

// Print writes every received message to out until ctx ends or the
// connection closes.
func (s *Session) Print(ctx context.Context, out io.Writer) {
	for {
		select {
		case m, ok := <-s.messages:
			if !ok {
				return
			}
			fmt.Fprintln(out, Describe(m))
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) await(ctx context.Context, want []wire.Type, out io.Writer) error {
	for {
		select {
		case m, ok := <-s.messages:
			if !ok {
				return io.ErrUnexpectedEOF
			}
			fmt.Fprintln(out, Describe(m))
			for _, t := range want {
				if m.Type() == t {
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var (
	subjects   = []string{"The cat", "The dog", "The bird"}
	adjectives = []string{"happy", "playful", "cute"}
)

// Sentence returns a random short sentence.
func Sentence() string {
	return subjects[rand.IntN(len(subjects))] + " is " + adjectives[rand.IntN(len(adjectives))]
}
