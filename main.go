/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/wayfarer-tours/apiserver/cmd"

func main() {
	cmd.Execute()
}
