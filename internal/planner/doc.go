// Package planner decides how many scenes a compilation has and what each
// scene looks like.
//
// Planning is a pure function of its inputs: the random source is passed in
// explicitly so a fixed seed reproduces the exact same timeline.
package planner
