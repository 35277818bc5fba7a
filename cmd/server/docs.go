package main

//go:generate swag init -g cmd/server/main.go -o docs

// @title           Perpscope API
// @version         0.1.0
// @description     Aggregated perpetual-contract metrics across derivatives venues.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
