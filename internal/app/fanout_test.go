package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Parley/internal/app/enrich"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/core/mocks"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
)

type fanoutFixture struct {
	registry   *Registry
	translator *mocks.MockTranslator
	sentiment  *mocks.MockSentimentAnalyzer
	router     *Router
	conns      map[domain.ConnectionID]*recordingConn
}

func newFanoutFixture(t *testing.T, policy Policy, parallel bool) *fanoutFixture {
	ctrl := gomock.NewController(t)
	f := &fanoutFixture{
		registry:   NewRegistry("en"),
		translator: mocks.NewMockTranslator(ctrl),
		sentiment:  mocks.NewMockSentimentAnalyzer(ctrl),
		conns:      make(map[domain.ConnectionID]*recordingConn),
	}
	pipeline := enrich.NewPipeline(f.translator, f.sentiment, enrich.Config{})
	f.router = NewRouter(f.registry, pipeline, policy, RouterConfig{Parallel: parallel, MaxWorkers: 4})
	return f
}

func (f *fanoutFixture) join(id domain.ConnectionID, name, lang string) *recordingConn {
	c := &recordingConn{}
	f.conns[id] = c
	f.registry.Bind(id, c, lang)
	f.registry.Register(id, name, lang)
	return c
}

func TestRouter_GroupMessageTranslatedPerRecipient(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t, nil, false)
	alice := f.join("c-alice", "alice", "en")
	bob := f.join("c-bob", "bob", "fr")
	f.registry.JoinGroup("c-alice", "g1")
	f.registry.JoinGroup("c-bob", "g1")

	f.sentiment.EXPECT().AnalyzeSentiment(gomock.Any(), "hello").
		Return(domain.Sentiment{Label: "positive", Positive: 0.9, Neutral: 0.1}, nil).Times(1)
	f.translator.EXPECT().Translate(gomock.Any(), "hello", "fr").Return("bonjour", nil).Times(1)

	report := f.router.Deliver(context.Background(), domain.ChatMessage{
		Sender:      "c-alice",
		Author:      "alice",
		Destination: domain.ToGroup("g1"),
		Text:        "hello",
	})
	req.Equal(1, report.Recipients)
	req.Equal(1, report.Delivered)

	got := bob.messages(t, protocol.EventReceiveGroupMessage)
	req.Len(got, 1)
	req.Equal("bonjour", got[0].Message)
	req.Equal("alice", got[0].User)
	req.NotNil(got[0].Group)
	req.Equal("g1", *got[0].Group)
	req.Equal("positive", got[0].Label)

	req.Empty(alice.envelopes(t))
}

func TestRouter_GroupMessageFromNonMember(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t, nil, false)
	alice := f.join("c-alice", "alice", "en")
	bob := f.join("c-bob", "bob", "fr")
	f.registry.JoinGroup("c-bob", "g1")

	f.sentiment.EXPECT().AnalyzeSentiment(gomock.Any(), "hello").Return(domain.UnknownSentiment(), nil).Times(1)
	f.translator.EXPECT().Translate(gomock.Any(), "hello", "fr").Return("bonjour", nil)

	f.router.Deliver(context.Background(), domain.ChatMessage{
		Sender: "c-alice", Author: "alice", Destination: domain.ToGroup("g1"), Text: "hello",
	})

	req.Len(bob.messages(t, protocol.EventReceiveGroupMessage), 1)
	req.Empty(alice.envelopes(t))
}

func TestRouter_PrivateMessageToUnknownUser(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t, nil, false)
	alice := f.join("c-alice", "alice", "en")

	report := f.router.Deliver(context.Background(), domain.ChatMessage{
		Sender: "c-alice", Author: "alice", Destination: domain.ToUser("carol"), Text: "hi",
	})
	req.True(report.Unresolved)

	got := alice.messages(t, protocol.EventReceivePrivateMessage)
	req.Len(got, 1)
	req.Equal("System", got[0].User)
	req.Contains(got[0].Message, "carol is not online")
	req.Nil(got[0].Group)
}

func TestRouter_PrivateMessageEchoesSender(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t, nil, true)
	alice := f.join("c-alice", "alice", "de")
	bob := f.join("c-bob", "bob", "fr")

	f.sentiment.EXPECT().AnalyzeSentiment(gomock.Any(), "hello").Return(domain.UnknownSentiment(), nil).Times(1)
	f.translator.EXPECT().Translate(gomock.Any(), "hello", "fr").Return("bonjour", nil)
	f.translator.EXPECT().Translate(gomock.Any(), "hello", "de").Return("hallo", nil)

	report := f.router.Deliver(context.Background(), domain.ChatMessage{
		Sender: "c-alice", Author: "alice", Destination: domain.ToUser("bob"), Text: "hello",
	})
	req.Equal(2, report.Delivered)

	toBob := bob.messages(t, protocol.EventReceivePrivateMessage)
	req.Len(toBob, 1)
	req.Equal("bonjour", toBob[0].Message)

	echo := alice.messages(t, protocol.EventReceivePrivateMessage)
	req.Len(echo, 1)
	req.Equal("hallo", echo[0].Message)
	req.Equal("alice", echo[0].User)
}

func TestRouter_PrivateMessageToSelfIsDeliveredOnce(t *testing.T) {
	f := newFanoutFixture(t, nil, false)
	alice := f.join("c-alice", "alice", "en")

	f.sentiment.EXPECT().AnalyzeSentiment(gomock.Any(), gomock.Any()).Return(domain.UnknownSentiment(), nil)
	f.translator.EXPECT().Translate(gomock.Any(), "note", "en").Return("note", nil)

	f.router.Deliver(context.Background(), domain.ChatMessage{
		Sender: "c-alice", Author: "alice", Destination: domain.ToUser("alice"), Text: "note",
	})
	require.Len(t, alice.messages(t, protocol.EventReceivePrivateMessage), 1)
}

func TestRouter_BroadcastIsolatesTranslationFailures(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t, nil, true)
	alice := f.join("c-alice", "alice", "en")
	bob := f.join("c-bob", "bob", "fr")
	kenji := f.join("c-kenji", "kenji", "ja")
	// anonymous connection with no session still belongs to "all"
	anon := &recordingConn{}
	f.registry.Bind("c-anon", anon, "es")

	f.sentiment.EXPECT().AnalyzeSentiment(gomock.Any(), "hello").Return(domain.UnknownSentiment(), nil).Times(1)
	f.translator.EXPECT().Translate(gomock.Any(), "hello", "en").Return("hello", nil)
	f.translator.EXPECT().Translate(gomock.Any(), "hello", "fr").Return("bonjour", nil)
	f.translator.EXPECT().Translate(gomock.Any(), "hello", "es").Return("hola", nil)
	f.translator.EXPECT().Translate(gomock.Any(), "hello", "ja").Return("", errors.New("vendor 503"))

	report := f.router.Deliver(context.Background(), domain.ChatMessage{
		Sender: "c-alice", Author: "alice", Destination: domain.ToAll(), Text: "hello",
	})
	req.Equal(4, report.Recipients)
	req.Equal(4, report.Delivered)

	req.Equal("hello", alice.messages(t, protocol.EventReceiveMessage)[0].Message)
	req.Equal("bonjour", bob.messages(t, protocol.EventReceiveMessage)[0].Message)
	req.Equal("hola", anon.messages(t, protocol.EventReceiveMessage)[0].Message)
	req.Equal("hello", kenji.messages(t, protocol.EventReceiveMessage)[0].Message)
}

func TestRouter_SendFailureIsSkipped(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t, KickPolicy{}, false)
	f.join("c-alice", "alice", "en")
	slow := f.join("c-slow", "slow", "en")
	slow.err = core.ErrBackpressure
	fast := f.join("c-fast", "fast", "en")

	f.sentiment.EXPECT().AnalyzeSentiment(gomock.Any(), gomock.Any()).Return(domain.UnknownSentiment(), nil).Times(1)
	f.translator.EXPECT().Translate(gomock.Any(), "hi", "en").Return("hi", nil).AnyTimes()

	report := f.router.Deliver(context.Background(), domain.ChatMessage{
		Sender: "c-alice", Author: "alice", Destination: domain.ToAll(), Text: "hi",
	})
	req.Equal(3, report.Recipients)
	req.Equal(2, report.Delivered)
	req.Equal(1, report.Failed)
	req.True(slow.isClosed())
	req.Len(fast.messages(t, protocol.EventReceiveMessage), 1)
}

func TestRouter_EmptyGroupStillEvaluatesSentimentOnce(t *testing.T) {
	f := newFanoutFixture(t, nil, false)
	f.join("c-alice", "alice", "en")
	f.sentiment.EXPECT().AnalyzeSentiment(gomock.Any(), gomock.Any()).Return(domain.UnknownSentiment(), nil).Times(1)

	report := f.router.Deliver(context.Background(), domain.ChatMessage{
		Sender: "c-alice", Author: "alice", Destination: domain.ToGroup("nobody"), Text: "echo?",
	})
	require.Zero(t, report.Recipients)
}

func TestRouter_Publish(t *testing.T) {
	req := require.New(t)
	f := newFanoutFixture(t, DropPolicy{}, false)
	alice := f.join("c-alice", "alice", "en")
	broken := f.join("c-broken", "broken", "en")
	broken.err = core.ErrConnectionClosed

	res := f.router.PublishAll(protocol.EventUpdateUserList, f.registry.Snapshot())
	req.Equal(1, res.SendTo)
	req.Equal([]domain.ConnectionID{"c-broken"}, res.Dropped)
	req.False(broken.isClosed())

	envs := alice.envelopes(t)
	req.Len(envs, 1)
	var roster []string
	req.NoError(envs[0].DecodePayload(&roster))
	req.Equal([]string{"alice", "broken"}, roster)
}
