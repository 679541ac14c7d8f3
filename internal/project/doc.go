// Package project locates and parses baseplate projects.
//
// A project is a directory holding a project definition, by default
// baseplate.project.yml. The definition is a tree of generator
// descriptors:
//
//	name: shop
//	generator: project
//	config:
//	  module: github.com/acme/shop
//	children:
//	  - name: api
//	    generator: go-package
//	    config:
//	      path: internal/api
//
// Load the definition for a directory:
//
//	def, err := project.Load("baseplate.project.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tree, err := eng.BuildTree(def.Root)
//
// The package also reads go.mod so generators can default their module
// path to the one already declared by the project.
package project
