// Package framework provides the standard and framework modules that
// compiled packages link against. Functions declared native here have no
// bytecode; the translator generates their bodies.
package framework

import (
	"sync"

	"github.com/wippyai/move2wasm/move"
	"github.com/wippyai/move2wasm/move/builder"
)

// Module identities
var (
	SignerModule    = move.ModuleID{Address: move.StdAddress, Name: "signer"}
	VectorModule    = move.ModuleID{Address: move.StdAddress, Name: "vector"}
	ObjectModule    = move.ModuleID{Address: move.FrameworkAddress, Name: "object"}
	TxContextModule = move.ModuleID{Address: move.FrameworkAddress, Name: "tx_context"}
	TransferModule  = move.ModuleID{Address: move.FrameworkAddress, Name: "transfer"}
	EventModule     = move.ModuleID{Address: move.FrameworkAddress, Name: "event"}
)

// Datatype names the compiler recognizes
const (
	UIDName       = "UID"
	IDName        = "ID"
	NamedIDName   = "NamedId"
	TxContextName = "TxContext"
)

const (
	abCopyDrop      = move.AbilitySet(move.AbilityCopy | move.AbilityDrop)
	abCopyDropStore = move.AbilitySet(move.AbilityCopy | move.AbilityDrop | move.AbilityStore)
	abKey           = move.AbilitySet(move.AbilityKey)
	abStore         = move.AbilitySet(move.AbilityStore)
	abDrop          = move.AbilitySet(move.AbilityDrop)
)

var (
	once    sync.Once
	modules []*move.CompiledModule
)

// Modules returns every framework module. The slice is shared and must
// not be modified.
func Modules() []*move.CompiledModule {
	once.Do(func() {
		modules = []*move.CompiledModule{
			Signer(),
			Vector(),
			TxContext(),
			Object(),
			Transfer(),
			Event(),
		}
	})
	return modules
}

// IsFramework reports whether id is one of the framework modules
func IsFramework(id move.ModuleID) bool {
	switch id {
	case SignerModule, VectorModule, ObjectModule, TxContextModule, TransferModule, EventModule:
		return true
	}
	return false
}

func native(name string, params, returns []move.SignatureToken, typeParams ...move.AbilitySet) builder.Function {
	return builder.Function{
		Name:       name,
		Params:     params,
		Returns:    returns,
		TypeParams: typeParams,
		Visibility: move.VisibilityPublic,
		Native:     true,
	}
}

func toks(ts ...move.SignatureToken) []move.SignatureToken { return ts }

// Signer builds 0x1::signer
func Signer() *move.CompiledModule {
	b := builder.New(move.StdAddress, SignerModule.Name)
	borrow := b.AddFunction(native("borrow_address",
		toks(move.RefOf(move.Signer)), toks(move.RefOf(move.AddressToken))))
	b.AddFunction(builder.Function{
		Name:       "address_of",
		Params:     toks(move.RefOf(move.Signer)),
		Returns:    toks(move.AddressToken),
		Visibility: move.VisibilityPublic,
		Code: []move.Bytecode{
			builder.Idx(move.OpMoveLoc, 0),
			builder.Idx(move.OpCall, borrow),
			builder.Op(move.OpReadRef),
			builder.Op(move.OpRet),
		},
	})
	return b.Build()
}

// Vector builds 0x1::vector
func Vector() *move.CompiledModule {
	b := builder.New(move.StdAddress, VectorModule.Name)
	t := move.TypeParam(0)
	vec := move.VectorOf(t)
	free := move.AbilitySet(0)
	b.AddFunction(native("empty", nil, toks(vec), free))
	b.AddFunction(native("length", toks(move.RefOf(vec)), toks(move.U64), free))
	b.AddFunction(native("borrow", toks(move.RefOf(vec), move.U64), toks(move.RefOf(t)), free))
	b.AddFunction(native("push_back", toks(move.MutRefOf(vec), t), nil, free))
	b.AddFunction(native("borrow_mut", toks(move.MutRefOf(vec), move.U64), toks(move.MutRefOf(t)), free))
	b.AddFunction(native("pop_back", toks(move.MutRefOf(vec)), toks(t), free))
	b.AddFunction(native("destroy_empty", toks(vec), nil, free))
	b.AddFunction(native("swap", toks(move.MutRefOf(vec), move.U64, move.U64), nil, free))
	return b.Build()
}

// TxContext builds 0x2::tx_context
func TxContext() *move.CompiledModule {
	b := builder.New(move.FrameworkAddress, TxContextModule.Name)
	ctx := b.Struct(TxContextName, abDrop,
		builder.F("sender", move.AddressToken),
		builder.F("ids_created", move.U64),
	).Token()
	b.AddFunction(native("sender", toks(move.RefOf(ctx)), toks(move.AddressToken)))
	b.AddFunction(native("fresh_id", toks(move.MutRefOf(ctx)), toks(move.AddressToken)))
	return b.Build()
}

// Object builds 0x2::object
func Object() *move.CompiledModule {
	b := builder.New(move.FrameworkAddress, ObjectModule.Name)
	ctx := b.ImportType(TxContextModule, TxContextName, abDrop)
	id := b.Struct(IDName, abCopyDropStore, builder.F("bytes", move.AddressToken)).Token()
	uid := b.Struct(UIDName, abStore, builder.F("id", id)).Token()
	b.AddFunction(native("new", toks(move.MutRefOf(ctx)), toks(uid)))
	b.AddFunction(native("delete", toks(uid), nil))
	b.AddFunction(native("uid_to_address", toks(move.RefOf(uid)), toks(move.AddressToken)))
	b.AddFunction(native("uid_to_inner", toks(move.RefOf(uid)), toks(id)))
	b.AddFunction(native("id_to_address", toks(move.RefOf(id)), toks(move.AddressToken)))
	b.AddFunction(native("id", toks(move.RefOf(move.TypeParam(0))), toks(id), abKey))
	return b.Build()
}

// Transfer builds 0x2::transfer
func Transfer() *move.CompiledModule {
	b := builder.New(move.FrameworkAddress, TransferModule.Name)
	t := move.TypeParam(0)
	b.AddFunction(native("transfer", toks(t, move.AddressToken), nil, abKey))
	b.AddFunction(native("share_object", toks(t), nil, abKey))
	b.AddFunction(native("freeze_object", toks(t), nil, abKey))
	return b.Build()
}

// Event builds 0x2::event
func Event() *move.CompiledModule {
	b := builder.New(move.FrameworkAddress, EventModule.Name)
	b.AddFunction(native("emit", toks(move.TypeParam(0)), nil, abCopyDrop))
	return b.Build()
}
