package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"telerelay/internal/core/domain"
	"telerelay/internal/core/ports"
	apperrors "telerelay/pkg/errors"
	"telerelay/pkg/tracing"

	"go.uber.org/zap"
)

type routerService struct {
	registry ports.PeerRegistry
	sender   ports.MessageSender
	labels   domain.DeviceLabels
	metrics  ports.RelayMetrics
	logger   *zap.SugaredLogger
}

func NewRouterService(
	registry ports.PeerRegistry,
	sender ports.MessageSender,
	labels domain.DeviceLabels,
	metrics ports.RelayMetrics,
	logger *zap.SugaredLogger,
) ports.RouterService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &routerService{
		registry: registry,
		sender:   sender,
		labels:   labels,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *routerService) HandleConnect(ctx context.Context, peer domain.Peer) {
	s.reply(peer.ID, fmt.Sprintf("Welcome. You are client %d.", peer.ID), false)
	s.broadcastText(ctx, "presence", peer.ID, fmt.Sprintf("Client %d has joined the session.", peer.ID))
}

// HandleText classifies handshakes and routes everything else by the
// sender's current role. Protocol and routing failures are replied to the
// sender and returned as *errors.AppError; they are never fatal.
func (s *routerService) HandleText(ctx context.Context, id domain.PeerID, text string) error {
	ctx, span := tracing.TraceWebSocketMessage(ctx, "text", id.String())
	defer span.End()

	peer, err := s.registry.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("route text from %d: %w", id, err)
	}

	msg := strings.TrimSpace(text)
	if role, ok := s.labels.Classify(msg); ok {
		return s.classify(ctx, peer, role)
	}

	switch {
	case peer.Role.IsController():
		err = s.handleControllerText(ctx, peer, msg)
	case peer.Role.IsDevice():
		err = s.handleDeviceText(ctx, peer, msg)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

func (s *routerService) classify(ctx context.Context, peer domain.Peer, role domain.Role) error {
	displaced, err := s.registry.SetRole(ctx, peer.ID, role)
	if err != nil {
		s.logger.Warnw("ignoring handshake",
			"peer_id", peer.ID,
			"role", peer.Role,
			"claimed", role,
			"error", err,
		)
		return fmt.Errorf("classify peer %d: %w", peer.ID, err)
	}

	label := s.labels.Label(role)
	s.logger.Infow("peer classified", "peer_id", peer.ID, "role", role, "label", label)
	if displaced != 0 {
		s.logger.Infow("device slot replaced",
			"role", role,
			"previous_peer_id", displaced,
			"peer_id", peer.ID,
		)
	}

	s.broadcastText(ctx, "presence", peer.ID, label+" is now connected!")
	return nil
}

func (s *routerService) handleControllerText(ctx context.Context, peer domain.Peer, msg string) error {
	cmd, err := domain.ParseCommand(msg)
	if err != nil {
		rng, _ := cmd.Verb.Range()
		s.metrics.RecordCommand(cmd.Verb.String(), "rejected")
		s.logger.Infow("rejected command", "peer_id", peer.ID, "text", msg, "error", err)

		appErr := apperrors.WrapError(err, apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("Invalid %s level. Please use a number between %d and %d.", cmd.Verb, rng.Min, rng.Max),
			http.StatusBadRequest)
		s.reply(peer.ID, appErr.Message, true)
		return appErr
	}

	if cmd.Verb == domain.VerbChat {
		s.broadcastText(ctx, "chat", peer.ID, fmt.Sprintf("Client %d: %s", peer.ID, cmd.Text))
		s.metrics.RecordCommand(cmd.Verb.String(), "broadcast")
		s.reply(peer.ID, "Your message broadcasted.", true)
		return nil
	}

	return s.forwardCommand(ctx, peer, cmd)
}

func (s *routerService) forwardCommand(ctx context.Context, peer domain.Peer, cmd domain.Command) error {
	label := s.labels.Label(domain.RoleActuatorDevice)
	wire := cmd.Wire()

	actuator, ok := s.registry.LookupSingleton(ctx, domain.RoleActuatorDevice)
	if ok {
		if err := s.sender.SendText(actuator.ID, wire); err != nil {
			s.logger.Warnw("failed to forward command", "peer_id", peer.ID, "target", actuator.ID, "command", wire, "error", err)
			ok = false
		}
	}
	if !ok {
		s.metrics.RecordCommand(cmd.Verb.String(), "unavailable")
		s.logger.Warnw("actuator not connected, command not sent", "peer_id", peer.ID, "command", wire)

		appErr := apperrors.NewNotConnectedError(label)
		s.reply(peer.ID, appErr.Message, true)
		return appErr
	}

	s.metrics.RecordCommand(cmd.Verb.String(), "forwarded")
	s.logger.Debugw("forwarded command", "peer_id", peer.ID, "target", actuator.ID, "command", wire)

	switch cmd.Verb {
	case domain.VerbVolume:
		s.reply(peer.ID, fmt.Sprintf("Volume set to %d on %s.", cmd.Arg, label), true)
	case domain.VerbSpeed:
		s.reply(peer.ID, fmt.Sprintf("Speed set to %d on %s.", cmd.Arg, label), true)
	default:
		s.reply(peer.ID, fmt.Sprintf("Command %q sent to %s.", wire, label), true)
	}
	return nil
}

func (s *routerService) handleDeviceText(ctx context.Context, peer domain.Peer, msg string) error {
	if !s.isHolder(ctx, peer) {
		s.metrics.RecordDropped("displaced_device")
		s.logger.Debugw("dropping text from displaced device", "peer_id", peer.ID, "role", peer.Role)
		return nil
	}

	s.logger.Debugw("device status", "peer_id", peer.ID, "role", peer.Role, "text", msg)
	s.broadcastText(ctx, "telemetry", peer.ID, s.labels.Label(peer.Role)+": "+msg)
	return nil
}

// HandleBinary relays audio. Downlink: actuator to every controller.
// Uplink: controller to the actuator. Anything else is dropped.
func (s *routerService) HandleBinary(ctx context.Context, id domain.PeerID, payload []byte) error {
	peer, err := s.registry.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("route binary from %d: %w", id, err)
	}

	switch {
	case peer.Role == domain.RoleActuatorDevice && s.isHolder(ctx, peer):
		s.broadcastBinary(ctx, peer.ID, payload)

	case peer.Role.IsController():
		actuator, ok := s.registry.LookupSingleton(ctx, domain.RoleActuatorDevice)
		if !ok {
			s.metrics.RecordDropped("uplink_no_actuator")
			s.logger.Debugw("actuator not connected, uplink audio dropped", "peer_id", peer.ID, "bytes", len(payload))
			return nil
		}
		if err := s.sender.SendBinary(actuator.ID, payload); err != nil {
			s.metrics.RecordDropped("uplink_send_failed")
			s.logger.Warnw("failed to forward uplink audio", "peer_id", peer.ID, "target", actuator.ID, "error", err)
		}

	default:
		s.metrics.RecordDropped("binary_from_" + peer.Role.String())
		s.logger.Debugw("dropping binary", "peer_id", peer.ID, "role", peer.Role, "bytes", len(payload))
	}
	return nil
}

func (s *routerService) HandleDisconnect(ctx context.Context, id domain.PeerID) error {
	peer, holder, err := s.registry.Unregister(ctx, id)
	if err != nil {
		return fmt.Errorf("disconnect %d: %w", id, err)
	}

	s.logger.Infow("peer disconnected", "peer_id", peer.ID, "role", peer.Role, "slot_holder", holder)

	switch {
	case holder:
		s.broadcastText(ctx, "presence", peer.ID, s.labels.Label(peer.Role)+" has disconnected!")
	case peer.Role.IsController():
		s.broadcastText(ctx, "presence", peer.ID, fmt.Sprintf("Client %d has left the session.", peer.ID))
	}
	return nil
}

// isHolder reports whether the device peer still owns its role's slot.
func (s *routerService) isHolder(ctx context.Context, peer domain.Peer) bool {
	holder, ok := s.registry.LookupSingleton(ctx, peer.Role)
	return ok && holder.ID == peer.ID
}

func (s *routerService) reply(id domain.PeerID, text string, prefixed bool) {
	if prefixed {
		text = domain.ReplyPrefix + text
	}
	if err := s.sender.SendText(id, text); err != nil {
		s.logger.Debugw("failed to reply", "peer_id", id, "error", err)
	}
}

// broadcastText delivers to every controller except the sender. A failed
// send is logged and does not stop the remaining deliveries.
func (s *routerService) broadcastText(ctx context.Context, kind string, sender domain.PeerID, text string) {
	recipients, failed := 0, 0
	s.registry.ForEach(ctx, domain.RoleController, func(p domain.Peer) {
		if p.ID == sender {
			return
		}
		recipients++
		if err := s.sender.SendText(p.ID, text); err != nil {
			failed++
			s.logger.Debugw("broadcast delivery failed", "kind", kind, "peer_id", p.ID, "error", err)
		}
	})
	s.metrics.RecordBroadcast(kind, recipients, failed)
}

func (s *routerService) broadcastBinary(ctx context.Context, sender domain.PeerID, payload []byte) {
	recipients, failed := 0, 0
	s.registry.ForEach(ctx, domain.RoleController, func(p domain.Peer) {
		if p.ID == sender {
			return
		}
		recipients++
		if err := s.sender.SendBinary(p.ID, payload); err != nil {
			failed++
			s.logger.Debugw("audio delivery failed", "peer_id", p.ID, "error", err)
		}
	})
	s.metrics.RecordBroadcast("audio", recipients, failed)
}

type noopMetrics struct{}

func (noopMetrics) RecordCommand(string, string) {}

func (noopMetrics) RecordBroadcast(string, int, int) {}

func (noopMetrics) RecordDropped(string) {}

func (noopMetrics) SetConnectedPeers(int) {}
