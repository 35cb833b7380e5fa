// Package notify sends the task-completion e-mail spec §6 "E-mail
// notification" describes. No library in the dependency graph offers an
// SMTP client beyond net/smtp, so this component is one of the handful
// built directly on the standard library (see DESIGN.md).
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Message is the composed e-mail, built by Compose and handed to a
// Sender.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// TaskInfo carries everything Compose needs out of a finished task,
// decoupled from the task package so notify has no pipeline dependency.
type TaskInfo struct {
	TaskID     int
	Host       string
	Succeeded  bool
	URL        string
	SaveDir    string
	Started    time.Time
	Finished   time.Time
	MD5        string
	KernelVer  string
	RemoteURLs []string
	Log        string
	RepoDir    string
	IsVmcore   bool
}

// Compose renders the subject and body of spec §6 "E-mail notification".
func Compose(from string, notify []string, info TaskInfo) Message {
	disposition := "failed"
	if info.Succeeded {
		disposition = "succeeded"
	}

	subject := fmt.Sprintf("Retrace Task #%d on %s %s", info.TaskID, info.Host, disposition)

	var b strings.Builder

	fmt.Fprintf(&b, "Task #%d\n", info.TaskID)
	fmt.Fprintf(&b, "Host: %s\n", info.Host)

	if info.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", info.URL)
	}

	fmt.Fprintf(&b, "Save directory: %s\n", info.SaveDir)
	fmt.Fprintf(&b, "Started: %s\n", info.Started.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Finished: %s\n", info.Finished.Local().Format("2006-01-02 15:04:05"))

	if info.MD5 != "" {
		fmt.Fprintf(&b, "MD5: %s\n", info.MD5)
	}

	if info.KernelVer != "" {
		fmt.Fprintf(&b, "Kernel version: %s\n", info.KernelVer)
	}

	for _, remote := range info.RemoteURLs {
		fmt.Fprintf(&b, "Remote file: %s\n", strings.TrimPrefix(remote, "FTP "))
	}

	if !info.Succeeded && info.IsVmcore {
		fmt.Fprintf(&b, "\nIf the kernel version could not be auto-detected, restart the task with an "+
			"explicit --kernelver, e.g.:\n$ retrace-server-task restart --kernelver 2.6.32-358.el6.x86_64 %d\n", info.TaskID)
		fmt.Fprintf(&b, "\nIf the kernel-debuginfo repository is unavailable, place the RPM at %s/download/ "+
			"and restart with:\n$ retrace-server-task restart %d\n", info.RepoDir, info.TaskID)
		b.WriteString("\nIf the log mentions a small kernellog size, the vmcore may be truncated; check its " +
			"MD5 and consider re-uploading.\n")
	}

	if info.Log != "" {
		fmt.Fprintf(&b, "\nLog:\n%s\n", info.Log)
	}

	return Message{From: from, To: notify, Subject: subject, Body: b.String()}
}

// Sender delivers a composed Message.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender is the default Sender, dialing addr for every message.
type SMTPSender struct {
	Addr string
}

func (s *SMTPSender) Send(msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		msg.From, strings.Join(msg.To, ", "), msg.Subject, msg.Body)

	return smtp.SendMail(s.Addr, nil, msg.From, msg.To, []byte(body))
}
