// Package memory is an in-process remote.Service.
//
// It backs the engine and orchestrator tests and the CLI's --dry-run mode.
// Every call is counted per operation, and a fault hook can fail any call.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/schemasync/internal/ir"
	"github.com/roach88/schemasync/internal/remote"
)

// Op names a Service operation.
type Op string

const (
	OpListItemTypes  Op = "item_types.list"
	OpFindItemType   Op = "item_types.find"
	OpCreateItemType Op = "item_types.create"
	OpUpdateItemType Op = "item_types.update"
	OpListFields     Op = "fields.list"
	OpCreateField    Op = "fields.create"
	OpUpdateField    Op = "fields.update"
	OpDestroyField   Op = "fields.destroy"
)

// Call records one mutating call. Key is the api key of the affected
// resource.
type Call struct {
	Op  Op     `json:"op"`
	Key string `json:"key"`
}

// FaultFunc is consulted before each call. A non-nil error fails the call
// without side effects. key is the api key of the affected resource when
// known, otherwise the id argument.
type FaultFunc func(op Op, key string) error

// IDGenerator produces resource ids.
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string { return uuid.NewString() }

// Option configures a Service.
type Option func(*Service)

// WithIDGenerator replaces the default random UUID ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithFault installs a fault hook.
func WithFault(f FaultFunc) Option {
	return func(s *Service) { s.fault = f }
}

// Service is safe for concurrent use.
type Service struct {
	mu        sync.Mutex
	ids       IDGenerator
	fault     FaultFunc
	itemTypes map[string]remote.ItemType
	typeOrder []string
	fields    map[string]remote.Field
	counts    map[Op]int
	calls     []Call
}

var _ remote.Service = (*Service)(nil)

// New creates an empty Service.
func New(opts ...Option) *Service {
	s := &Service{
		ids:       uuidGenerator{},
		itemTypes: make(map[string]remote.ItemType),
		fields:    make(map[string]remote.Field),
		counts:    make(map[Op]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFault replaces the fault hook. nil clears it.
func (s *Service) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// Count returns how many times op was called, including failed calls.
func (s *Service) Count(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[op]
}

// Mutations returns the number of create, update and destroy calls.
func (s *Service) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for op, c := range s.counts {
		switch op {
		case OpListItemTypes, OpFindItemType, OpListFields:
		default:
			n += c
		}
	}
	return n
}

// Calls returns successful mutating calls in the order they were applied.
func (s *Service) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// ResetCounts clears counters and the call log, keeping stored resources.
func (s *Service) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[Op]int)
	s.calls = nil
}

// SeedItemType stores an item type without counting a call.
func (s *Service) SeedItemType(it remote.ItemType) remote.ItemType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == "" {
		it.ID = s.ids.Generate()
	}
	if _, ok := s.itemTypes[it.ID]; !ok {
		s.typeOrder = append(s.typeOrder, it.ID)
	}
	s.itemTypes[it.ID] = it
	return it
}

// SeedField stores a field without counting a call.
func (s *Service) SeedField(f remote.Field) remote.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = s.ids.Generate()
	}
	s.fields[f.ID] = f
	return f
}

// Field returns the stored field with id.
func (s *Service) Field(id string) (remote.Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[id]
	return f, ok
}

// FieldByAPIKey returns the field of itemTypeID with apiKey.
func (s *Service) FieldByAPIKey(itemTypeID, apiKey string) (remote.Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fields {
		if f.ItemTypeID == itemTypeID && f.APIKey == apiKey {
			return f, true
		}
	}
	return remote.Field{}, false
}

// begin counts the call and consults the fault hook. Callers hold s.mu.
func (s *Service) begin(op Op, key string) error {
	s.counts[op]++
	if s.fault != nil {
		return s.fault(op, key)
	}
	return nil
}

func (s *Service) record(op Op, key string) {
	s.calls = append(s.calls, Call{Op: op, Key: key})
}

// ListItemTypes implements remote.Service.
func (s *Service) ListItemTypes(ctx context.Context) ([]remote.ItemType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpListItemTypes, ""); err != nil {
		return nil, err
	}
	out := make([]remote.ItemType, 0, len(s.typeOrder))
	for _, id := range s.typeOrder {
		out = append(out, s.itemTypes[id])
	}
	return out, nil
}

// FindItemType implements remote.Service.
func (s *Service) FindItemType(ctx context.Context, id string) (remote.ItemType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpFindItemType, id); err != nil {
		return remote.ItemType{}, err
	}
	it, ok := s.itemTypes[id]
	if !ok {
		return remote.ItemType{}, notFound("item type", id)
	}
	return it, nil
}

// CreateItemType implements remote.Service.
func (s *Service) CreateItemType(ctx context.Context, body ir.IRObject) (remote.ItemType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := itemTypeFromBody(body)
	if err := s.begin(OpCreateItemType, it.APIKey); err != nil {
		return remote.ItemType{}, err
	}
	if err := checkWire(body); err != nil {
		return remote.ItemType{}, err
	}
	for _, existing := range s.itemTypes {
		if existing.APIKey == it.APIKey {
			return remote.ItemType{}, invalid("item type api_key %q already taken", it.APIKey)
		}
	}
	it.ID = s.ids.Generate()
	s.itemTypes[it.ID] = it
	s.typeOrder = append(s.typeOrder, it.ID)
	s.record(OpCreateItemType, it.APIKey)
	return it, nil
}

// UpdateItemType implements remote.Service.
func (s *Service) UpdateItemType(ctx context.Context, id string, body ir.IRObject) (remote.ItemType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.itemTypes[id]
	key := id
	if ok {
		key = current.APIKey
	}
	if err := s.begin(OpUpdateItemType, key); err != nil {
		return remote.ItemType{}, err
	}
	if !ok {
		return remote.ItemType{}, notFound("item type", id)
	}
	if err := checkWire(body); err != nil {
		return remote.ItemType{}, err
	}
	it := itemTypeFromBody(body)
	it.ID = id
	s.itemTypes[id] = it
	s.record(OpUpdateItemType, it.APIKey)
	return it, nil
}

// ListFields implements remote.Service. Fields are ordered by position.
func (s *Service) ListFields(ctx context.Context, itemTypeID string) ([]remote.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpListFields, itemTypeID); err != nil {
		return nil, err
	}
	if _, ok := s.itemTypes[itemTypeID]; !ok {
		return nil, notFound("item type", itemTypeID)
	}
	var out []remote.Field
	for _, f := range s.fields {
		if f.ItemTypeID == itemTypeID {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b remote.Field) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		if a.APIKey < b.APIKey {
			return -1
		}
		if a.APIKey > b.APIKey {
			return 1
		}
		return 0
	})
	return out, nil
}

// CreateField implements remote.Service.
func (s *Service) CreateField(ctx context.Context, itemTypeID string, body ir.IRObject) (remote.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := fieldFromBody(body)
	if err := s.begin(OpCreateField, f.APIKey); err != nil {
		return remote.Field{}, err
	}
	if _, ok := s.itemTypes[itemTypeID]; !ok {
		return remote.Field{}, notFound("item type", itemTypeID)
	}
	if err := checkWire(body); err != nil {
		return remote.Field{}, err
	}
	for _, existing := range s.fields {
		if existing.ItemTypeID == itemTypeID && existing.APIKey == f.APIKey {
			return remote.Field{}, invalid("field api_key %q already taken", f.APIKey)
		}
	}
	f.ID = s.ids.Generate()
	f.ItemTypeID = itemTypeID
	s.fields[f.ID] = f
	s.record(OpCreateField, f.APIKey)
	return f, nil
}

// UpdateField implements remote.Service.
func (s *Service) UpdateField(ctx context.Context, fieldID string, body ir.IRObject) (remote.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.fields[fieldID]
	key := fieldID
	if ok {
		key = current.APIKey
	}
	if err := s.begin(OpUpdateField, key); err != nil {
		return remote.Field{}, err
	}
	if !ok {
		return remote.Field{}, notFound("field", fieldID)
	}
	if err := checkWire(body); err != nil {
		return remote.Field{}, err
	}
	f := fieldFromBody(body)
	f.ID = fieldID
	f.ItemTypeID = current.ItemTypeID
	s.fields[fieldID] = f
	s.record(OpUpdateField, f.APIKey)
	return f, nil
}

// DestroyField implements remote.Service.
func (s *Service) DestroyField(ctx context.Context, fieldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.fields[fieldID]
	key := fieldID
	if ok {
		key = current.APIKey
	}
	if err := s.begin(OpDestroyField, key); err != nil {
		return err
	}
	if !ok {
		return notFound("field", fieldID)
	}
	delete(s.fields, fieldID)
	s.record(OpDestroyField, current.APIKey)
	return nil
}

// checkWire rejects bodies that could not be sent over HTTP, such as
// bodies still holding references.
func checkWire(body ir.IRObject) error {
	if _, err := ir.MarshalIRValue(body); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func itemTypeFromBody(body ir.IRObject) remote.ItemType {
	return remote.ItemType{
		Name:         str(body["name"]),
		APIKey:       str(body["api_key"]),
		ModularBlock: boolean(body["modular_block"]),
	}
}

func fieldFromBody(body ir.IRObject) remote.Field {
	f := remote.Field{
		APIKey:    str(body["api_key"]),
		Label:     str(body["label"]),
		FieldType: str(body["field_type"]),
	}
	if p, ok := body["position"].(ir.IRInt); ok {
		f.Position = int(p)
	}
	if v, ok := body["validators"].(ir.IRObject); ok {
		f.Validators = v.Clone()
	}
	return f
}

func str(v ir.IRValue) string {
	s, _ := v.(ir.IRString)
	return string(s)
}

func boolean(v ir.IRValue) bool {
	b, _ := v.(ir.IRBool)
	return bool(b)
}

func notFound(kind, id string) error {
	return &remote.Error{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: kind + " " + id + " not found"}
}

func invalid(format string, args ...any) error {
	return &remote.Error{Status: http.StatusUnprocessableEntity, Code: "INVALID", Message: fmt.Sprintf(format, args...)}
}
