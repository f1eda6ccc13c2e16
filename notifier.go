// this file deals with the asynchronous reviewer notification workflow
package main

import (
	"github.com/sirupsen/logrus"
)

// ReviewNotifier fans out review-request emails to the reviewer pool when a
// resource is submitted. Dispatch runs on a single background goroutine fed by
// a buffered queue so submission handlers never block on SMTP.
type ReviewNotifier struct {
	service Service
	mailer  Mailer
	secret  []byte
	baseURL string
	queue   chan Resource
	done    chan struct{}
	log     logrus.FieldLogger
}

func NewReviewNotifier(service Service, mailer Mailer, secret []byte, baseURL string,
	logger logrus.FieldLogger) *ReviewNotifier {
	return &ReviewNotifier{
		service: service,
		mailer:  mailer,
		secret:  secret,
		baseURL: baseURL,
		queue:   make(chan Resource, 64),
		done:    make(chan struct{}),
		log:     logger.WithField("component", "review_notifier"),
	}
}

func (n *ReviewNotifier) Start() {
	go func() {
		for res := range n.queue {
			n.dispatch(res)
		}
		close(n.done)
	}()
}

// Notify enqueues a submitted resource for reviewer fan-out. If the queue is
// full the notification is dropped and logged; review mail is best effort.
func (n *ReviewNotifier) Notify(res Resource) {
	select {
	case n.queue <- res:
	default:
		n.log.WithField("resource_id", res.ID).Warn("notification queue full, dropping review request")
	}
}

func (n *ReviewNotifier) Shutdown() {
	close(n.queue)
	<-n.done
}

func (n *ReviewNotifier) dispatch(res Resource) {
	reviewers, err := n.service.Reviewers()
	if err != nil {
		n.log.WithError(err).Error("failed to load reviewer pool")
		return
	}
	if len(reviewers) == 0 {
		n.log.WithField("resource_id", res.ID).Warn("no reviewers registered, skipping review request")
		return
	}

	for _, reviewer := range reviewers {
		token, err := signReviewToken(n.secret, reviewer, res.ID)
		if err != nil {
			n.log.WithError(err).WithField("reviewer", reviewer).Error("failed to sign review token")
			continue
		}
		acceptLink := n.baseURL + "/api/review/accept?token=" + token
		if err := n.mailer.SendReviewRequest(reviewer, res.Title, res.URL, acceptLink); err != nil {
			// already logged by the mailer; keep going with the rest of the pool
			continue
		}
		n.log.WithFields(logrus.Fields{
			"resource_id": res.ID,
			"reviewer":    reviewer,
		}).Info("review request sent")
	}
}
