package engine_test

import (
	"fmt"

	"pagedb/pkg/catalog/schema"
	"pagedb/pkg/config"
	"pagedb/pkg/engine"
	"pagedb/pkg/types"
)

func Example() {
	e, err := engine.New(config.Default())
	if err != nil {
		panic(err)
	}

	if err := e.CreateTable("users", []schema.Column{
		schema.NewColumn("id", types.Int32Type, false),
		schema.NewVarColumn("name", types.VarCharType, false, 32),
	}); err != nil {
		panic(err)
	}

	rid, err := e.Insert("users", []types.Field{
		types.NewInt32Field(1),
		types.NewVarCharField("Alice"),
	})
	if err != nil {
		panic(err)
	}

	fields, err := e.Get("users", rid.String())
	if err != nil {
		panic(err)
	}
	fmt.Println(rid.String(), fields[0], fields[1])
	// Output: 0:0 1 Alice
}
