# Multi-stage Dockerfile for any stepcoder Go service.
# ARG SERVICE = gateway | codegen | function
# The function image targets the Lambda provided.al2023 runtime, which runs
# /var/runtime/bootstrap; gateway and codegen run as plain containers.
ARG SERVICE

FROM golang:1.24-alpine AS builder
ARG SERVICE
RUN apk add --no-cache git ca-certificates

WORKDIR /src
COPY go.mod go.sum* ./
RUN go mod download
COPY shared/ ./shared/
COPY services/${SERVICE}/ ./services/${SERVICE}/

RUN CGO_ENABLED=0 GOOS=linux go build -tags lambda.norpc -ldflags="-w -s" -o /svc ./services/${SERVICE}

FROM alpine:3.19
COPY --from=builder /etc/ssl/certs/ca-certificates.crt /etc/ssl/certs/ca-certificates.crt
COPY --from=builder /svc /usr/local/bin/svc
COPY --from=builder /svc /var/runtime/bootstrap
ENTRYPOINT ["/usr/local/bin/svc"]
