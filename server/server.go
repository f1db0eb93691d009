// Package server is a JSON-RPC 1.0 server over HTTP.
//
// Request processing pipeline:
//
//	POST body → parse {method, params, id} → check X-JSON-RPC header
//	  → find "Service.Method" → decode params into *Args → reflect.Call
//	  → write {"id":..,"result":..,"error":null} or {"id":..,"result":null,"error":{..}}
//
// A request whose id is null is a notification: it runs, and the reply is 204 No Content.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"mini-jsonrpc/message"
	"mini-jsonrpc/registry"
)

// DefaultMaxRequestSize bounds the request body.
const DefaultMaxRequestSize = 1 << 20

// Error is a structured fault. A method returning an *Error has it written as the error
// member as is; any other error becomes {"message": err.Error()}.
type Error struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
	}
	return e.Message
}

// Server dispatches JSON-RPC requests to registered receivers.
type Server struct {
	logger  *zap.Logger
	maxBody int64

	mu         sync.RWMutex
	serviceMap map[string]*service

	httpServer    *http.Server
	registry      registry.Registry
	advertiseAddr string // Endpoint URL registered for every service
}

func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger:     logger,
		maxBody:    DefaultMaxRequestSize,
		serviceMap: make(map[string]*service),
	}
}

// Register publishes the methods of rcvr under its type name.
func (s *Server) Register(rcvr any) error {
	return s.RegisterName("", rcvr)
}

// RegisterName publishes the methods of rcvr as "name.Method".
func (s *Server) RegisterName(name string, rcvr any) error {
	svc, err := newService(rcvr, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.serviceMap[svc.name]; dup {
		return errors.Errorf("server: service %s already registered", svc.name)
	}
	s.serviceMap[svc.name] = svc
	s.logger.Debug("registered service", zap.String("service", svc.name), zap.Int("methods", len(svc.method)))
	return nil
}

// Services returns the registered service names.
func (s *Server) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.serviceMap))
	for name := range s.serviceMap {
		names = append(names, name)
	}
	return names
}

type request struct {
	method string
	params jx.Raw
	id     jx.Raw
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBody+1))
	if err != nil {
		http.Error(w, "read request", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > s.maxBody {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}

	req, err := parseRequest(body)
	if err != nil {
		s.logger.Debug("malformed request", zap.Error(err))
		s.reply(w, http.StatusBadRequest, nil, nil, &Error{Message: "parse error: " + err.Error()})
		return
	}
	notification := req.id == nil || jx.DecodeBytes(req.id).Next() == jx.Null

	start := time.Now()
	result, fault := s.dispatch(r.Header.Get(message.HeaderName), req)
	s.logger.Debug("handled call",
		zap.String("method", req.method),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("fault", fault != nil),
	)

	if notification {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.reply(w, http.StatusOK, req.id, result, fault)
}

func (s *Server) dispatch(header string, req *request) (json.RawMessage, *Error) {
	if header != req.method {
		return nil, &Error{Message: fmt.Sprintf("%s header %q does not match method %q", message.HeaderName, header, req.method)}
	}

	serviceName, methodName, ok := strings.Cut(req.method, ".")
	if !ok {
		return nil, &Error{Message: "invalid method name " + req.method}
	}
	s.mu.RLock()
	svc := s.serviceMap[serviceName]
	s.mu.RUnlock()
	if svc == nil {
		return nil, &Error{Message: "unknown service " + serviceName}
	}
	mt := svc.method[methodName]
	if mt == nil {
		return nil, &Error{Message: "unknown method " + req.method}
	}

	argv, err := mt.decodeArgs(req.params)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	replyv := reflect.New(mt.ReplyType)

	if err := s.invoke(svc, mt, argv, replyv); err != nil {
		var fault *Error
		if errors.As(err, &fault) {
			return nil, fault
		}
		return nil, &Error{Message: err.Error()}
	}

	result, err := json.Marshal(replyv.Interface())
	if err != nil {
		s.logger.Error("marshal reply", zap.String("method", req.method), zap.Error(err))
		return nil, &Error{Message: "cannot encode result"}
	}
	return result, nil
}

// invoke runs the method, turning a panic into an error.
func (s *Server) invoke(svc *service, mt *methodType, argv, replyv reflect.Value) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("method panicked", zap.String("service", svc.name), zap.String("method", mt.method.Name), zap.Any("panic", p))
			err = errors.Errorf("internal error in %s.%s", svc.name, mt.method.Name)
		}
	}()
	return svc.call(mt, argv, replyv)
}

func (s *Server) reply(w http.ResponseWriter, status int, id jx.Raw, result json.RawMessage, fault *Error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	if id == nil {
		e.Null()
	} else {
		e.Raw(id)
	}
	e.FieldStart("result")
	if fault != nil || result == nil {
		e.Null()
	} else {
		e.Raw(result)
	}
	e.FieldStart("error")
	if fault == nil {
		e.Null()
	} else {
		b, err := json.Marshal(fault)
		if err != nil {
			b, _ = json.Marshal(&Error{Code: fault.Code, Message: fault.Message})
		}
		e.Raw(b)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		s.logger.Debug("write reply", zap.Error(err))
	}
}

func parseRequest(body []byte) (*request, error) {
	if !jx.Valid(body) {
		return nil, errors.New("not a single JSON value")
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return nil, errors.New("not a JSON object")
	}

	req := &request{}
	hasMethod := false
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "method":
			m, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "method")
			}
			req.method, hasMethod = m, true
		case "params":
			if d.Next() != jx.Array && d.Next() != jx.Null {
				return errors.New("params is not an array")
			}
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			req.params = rawCopy(raw)
			if jx.DecodeBytes(req.params).Next() == jx.Null {
				req.params = nil
			}
		case "id":
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			req.id = rawCopy(raw)
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !hasMethod || req.method == "" {
		return nil, errors.New("method is missing")
	}
	return req, nil
}

func rawCopy(r jx.Raw) jx.Raw {
	return append(jx.Raw(nil), bytes.TrimSpace(r)...)
}

// Serve accepts HTTP connections on ln until Shutdown. When reg is non-nil every
// registered service is announced under advertiseAddr with the given ttl first.
func (s *Server) Serve(ln net.Listener, advertiseAddr string, reg registry.Registry, ttl time.Duration) error {
	if reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, name := range s.Services() {
			inst := registry.ServiceInstance{Addr: advertiseAddr, Weight: 1}
			if err := reg.Register(ctx, name, inst, ttl); err != nil {
				return errors.Wrapf(err, "register %s", name)
			}
		}
		s.mu.Lock()
		s.registry, s.advertiseAddr = reg, advertiseAddr
		s.mu.Unlock()
	}

	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("serving", zap.String("addr", ln.Addr().String()), zap.String("advertise", advertiseAddr))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown deregisters every service first, so clients stop routing here, then waits for
// in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	reg, addr, srv := s.registry, s.advertiseAddr, s.httpServer
	s.mu.RUnlock()

	if reg != nil {
		for _, name := range s.Services() {
			if err := reg.Deregister(ctx, name, addr); err != nil {
				s.logger.Warn("deregister", zap.String("service", name), zap.Error(err))
			}
		}
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
