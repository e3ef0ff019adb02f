// Package schema loads host type definitions from YAML.
//
//	enums:
//	  - name: Team
//	    cases: [red, blue]
//	structs:
//	  - name: Vec
//	    fields:
//	      - {name: x, type: f32}
//	classes:
//	  - name: Actor
//	    fields:
//	      - {name: hp, type: s32}
//	      - {name: pos, type: Vec, flags: [readonly]}
//
// Field types use the host.Registry.ParseType grammar. Structs must be
// listed after the structs they contain; classes may appear in any order.
package schema
