package grpc

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/netx"
	pb "github.com/dmitrijs2005/staffkeeper/internal/proto"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const actorKey ctxKey = "actor"

// methods callable without an access token
var public = map[string]bool{
	pb.FullMethod(pb.MethodPing): true,
}

func (s *GRPCServer) timeoutInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.timeout <= 0 {
		return handler(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return handler(ctx, req)
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if public[info.FullMethod] {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(pb.MetadataAccessToken)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	actor, err := s.auth.Actor(ctx, accessToken)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) || errors.Is(err, common.ErrTokenExpired) || errors.Is(err, common.ErrorUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		s.logger.Error(ctx, "resolve actor", "method", info.FullMethod, "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	return handler(context.WithValue(ctx, actorKey, actor), req)
}

func actorFrom(ctx context.Context) (*models.Principal, error) {
	actor, ok := ctx.Value(actorKey).(*models.Principal)
	if !ok || actor == nil {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	return actor, nil
}

func (s *GRPCServer) loginRateInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if info.FullMethod == pb.FullMethod(pb.MethodLogin) {
		ctx := ss.Context()
		host := peerHost(ctx)
		if !s.limiter.allow(host) {
			s.logger.Warn(ctx, "login rate limited", "peer", host)
			return status.Error(codes.ResourceExhausted, "too many login attempts, retry later")
		}
	}
	return handler(srv, ss)
}

func peerHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "unknown"
	}
	return netx.Host(p.Addr)
}

// maxTrackedPeers triggers pruning of idle limiters.
const maxTrackedPeers = 4096

// loginLimiter throttles login conversations per peer host.
type loginLimiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	peers map[string]*rate.Limiter
}

func newLoginLimiter(limit rate.Limit, burst int) *loginLimiter {
	return &loginLimiter{limit: limit, burst: burst, peers: make(map[string]*rate.Limiter)}
}

func (l *loginLimiter) allow(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.peers[host]
	if !ok {
		if len(l.peers) >= maxTrackedPeers {
			l.pruneLocked()
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.peers[host] = lim
	}
	return lim.Allow()
}

// pruneLocked drops limiters that have refilled, they carry no state.
func (l *loginLimiter) pruneLocked() {
	for host, lim := range l.peers {
		if lim.Tokens() >= float64(l.burst) {
			delete(l.peers, host)
		}
	}
}
