package server

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "bright", "gentle", "brave", "calm", "swift",
	"silent", "bouncy", "fuzzy", "plucky", "merry", "peppy", "lucky", "mellow", "nimble", "witty",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"beaver", "seahorse", "starfish", "dolphin", "whale", "narwhal", "penguin", "flamingo", "pelican", "robin",
	"toucan", "parrot", "canary", "ferret", "raccoon", "lamb", "fawn", "duckling", "heron", "lynx",
}

var things = []string{
	"pancake", "waffle", "ramen", "taco", "dumpling", "noodle", "muffin", "biscuit", "toffee", "cocoa",
	"lantern", "puddle", "pebble", "cottage", "rocket", "comet", "orbit", "nebula", "canyon", "ridge",
	"meadow", "willow", "ember", "breeze", "marble", "maple", "sunbeam", "stardust", "glimmer", "echo",
}

// newRoomID returns a memorable adjective-animal-thing ID not accepted by taken.
func newRoomID(taken func(string) bool) string {
	for {
		id := strings.Join([]string{pick(adjectives), pick(animals), pick(things)}, "-")
		if !taken(id) {
			return id
		}
	}
}

func pick(words []string) string {
	return words[randomIndex(len(words))]
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("failed to generate random index: " + err.Error())
	}
	return int(n.Int64())
}
