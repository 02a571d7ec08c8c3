package main

import "github.com/gookit/color"

var (
	timestampColor = color.Gray
	senderColor    = color.Bold
	noticeColor    = color.Yellow
	errorColor     = color.Red
)

func renderNotice(msg string) string {
	return noticeColor.Sprint("-- " + msg + " --")
}

func renderError(err error) string {
	return errorColor.Sprint("error: " + err.Error())
}
