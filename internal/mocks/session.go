// Code generated by hand in the style of mockgen for
// crawlkit/internal/session.Store and crawlkit/internal/kafka.SessionProducer.
package mocks

import (
	context "context"
	reflect "reflect"

	gomock "github.com/golang/mock/gomock"

	"crawlkit/internal/kafka"
	"crawlkit/internal/session"
)

// MockStore is a mock of the session.Store interface.
type MockStore struct {
	ctrl     *gomock.Controller
	recorder *MockStoreMockRecorder
}

// MockStoreMockRecorder is the mock recorder for MockStore.
type MockStoreMockRecorder struct {
	mock *MockStore
}

// NewMockStore creates a new mock instance.
func NewMockStore(ctrl *gomock.Controller) *MockStore {
	mock := &MockStore{ctrl: ctrl}
	mock.recorder = &MockStoreMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockStore) EXPECT() *MockStoreMockRecorder {
	return m.recorder
}

// SetSession mocks base method.
func (m *MockStore) SetSession(ctx context.Context, s session.Session) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SetSession", ctx, s)
	ret0, _ := ret[0].(error)
	return ret0
}

// SetSession indicates an expected call.
func (mr *MockStoreMockRecorder) SetSession(ctx, s interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetSession", reflect.TypeOf((*MockStore)(nil).SetSession), ctx, s)
}

// GetSession mocks base method.
func (m *MockStore) GetSession(ctx context.Context, id string) (session.Session, bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetSession", ctx, id)
	ret0, _ := ret[0].(session.Session)
	ret1, _ := ret[1].(bool)
	ret2, _ := ret[2].(error)
	return ret0, ret1, ret2
}

// GetSession indicates an expected call.
func (mr *MockStoreMockRecorder) GetSession(ctx, id interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetSession", reflect.TypeOf((*MockStore)(nil).GetSession), ctx, id)
}

// MockSessionProducer is a mock of the kafka.SessionProducer interface.
type MockSessionProducer struct {
	ctrl     *gomock.Controller
	recorder *MockSessionProducerMockRecorder
}

// MockSessionProducerMockRecorder is the mock recorder for MockSessionProducer.
type MockSessionProducerMockRecorder struct {
	mock *MockSessionProducer
}

// NewMockSessionProducer creates a new mock instance.
func NewMockSessionProducer(ctrl *gomock.Controller) *MockSessionProducer {
	mock := &MockSessionProducer{ctrl: ctrl}
	mock.recorder = &MockSessionProducerMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockSessionProducer) EXPECT() *MockSessionProducerMockRecorder {
	return m.recorder
}

// WriteSessionStart mocks base method.
func (m *MockSessionProducer) WriteSessionStart(ctx context.Context, s kafka.SessionStart) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "WriteSessionStart", ctx, s)
	ret0, _ := ret[0].(error)
	return ret0
}

// WriteSessionStart indicates an expected call.
func (mr *MockSessionProducerMockRecorder) WriteSessionStart(ctx, s interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "WriteSessionStart", reflect.TypeOf((*MockSessionProducer)(nil).WriteSessionStart), ctx, s)
}
